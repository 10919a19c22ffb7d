// Package cli provides terminal output helpers for the sovits command:
// structured result rendering (YAML/JSON), styled status messages and
// simple tables for dataset and checkpoint reports.
package cli
