//go:build !debugassert

package common

const assertPanics = false
