//go:build tools

// Package tools documents development tool dependencies.
// These tools are run through `go run` or installed with `go install` and are not
// tracked in go.mod since they are not runtime dependencies.
package tools

// Development tools:
//
// mockgen - regenerates internal/mocks from the port interfaces
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0
//
// golangci-lint - static analysis
//   Install: go install github.com/golangci/golangci-lint/v2/cmd/golangci-lint@latest
