package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Referential("tenant %s is not active", "t1")
	wrapped := fmt.Errorf("write scores: %w", base)

	assert.Equal(t, KindReferential, KindOf(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.True(t, Is(wrapped, Referential("")))
	assert.False(t, Is(wrapped, Validation("")))
}

func TestRetryableOnlyForTransient(t *testing.T) {
	assert.True(t, IsRetryable(TransientUpstream("graph returned 503")))
	assert.False(t, IsRetryable(Upstream("graph returned 403")))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestCauseAndMetadata(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := TransientUpstream("fetch failed").WithCause(cause).WithMetadata("tenant_id", "t1")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch failed: connection refused", err.Error())
	assert.Equal(t, "t1", err.Metadata["tenant_id"])
	assert.True(t, IsInvariant(fmt.Errorf("x: %w", Invariant("audit entries are immutable"))))
}
