//go:build debugassert

package common

const assertPanics = true
