// Package types provides core types shared across the agentpipe pipeline.
// This package has ZERO dependencies on other agentpipe packages to avoid
// circular imports. All other packages should import types from here.
package types
