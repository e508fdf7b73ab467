// Package testutil provides test helpers shared by the plugwire packages:
// testdata module loading and a few assertions used across suites.
package testutil

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertJSONEqual fails the test unless want and got decode to the same
// JSON value. Whitespace and key order are ignored.
func AssertJSONEqual(t *testing.T, want, got string, msgAndArgs ...any) {
	t.Helper()
	var w, g any
	require.NoError(t, json.Unmarshal([]byte(want), &w), "want is not JSON: %s", want)
	require.NoError(t, json.Unmarshal([]byte(got), &g), "got is not JSON: %s", got)
	assert.Equal(t, w, g, msgAndArgs...)
}

// AssertDurationWithin fails the test if got differs from want by more than slack.
func AssertDurationWithin(t *testing.T, want, got, slack time.Duration, msgAndArgs ...any) {
	t.Helper()
	assert.InDelta(t, float64(want), float64(got), float64(slack), msgAndArgs...)
}

// RequireErrorAs asserts that err wraps an error of type T and returns it.
func RequireErrorAs[T error](t *testing.T, err error, msgAndArgs ...any) T {
	t.Helper()

	var target T
	require.Error(t, err, msgAndArgs...)
	require.True(t, stdErrors.As(err, &target), "expected %T in chain, got %T: %v", target, err, err)
	return target
}

// CountVowels returns the output the kitchen module's count_vowels export
// produces for input.
func CountVowels(input string) string {
	n := 0
	for _, c := range []byte(input) {
		switch c {
		case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
			n++
		}
	}
	return fmt.Sprintf(`{"count": %d}`, n)
}
