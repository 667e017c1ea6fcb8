// Package log wraps zerolog behind a small initialization and child-logger
// API. Components obtain scoped loggers via WithComponent; mission-scoped
// code uses WithMissionID so every line carries its correlation field.
package log
