// Package types provides core types used across the generation engine.
// This package has ZERO dependencies on other project packages to avoid
// circular imports. All other packages should import types from here.
package types
