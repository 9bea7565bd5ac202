package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Has(t *testing.T) {
	c, err := NewChecker(map[string][]string{
		"student":  {AttemptSave},
		"reviewer": {"attempt:view-*"},
		"admin":    {"*"},
	})
	require.NoError(t, err)
	assert.True(t, c.Has("student", AttemptSave))
	assert.False(t, c.Has("student", AttemptGrade))
	assert.True(t, c.Has("reviewer", AttemptViewOwn))
	assert.True(t, c.Has("reviewer", AttemptViewAll))
	assert.False(t, c.Has("reviewer", AttemptGrade))
	assert.True(t, c.Has("admin", AttemptGrade))
	assert.False(t, c.Has("nobody", AttemptSave))

	assert.True(t, c.Any("student", AttemptGrade, AttemptSave))
	assert.False(t, c.Any("student", AttemptGrade, AttemptViewAll))
}

func TestNewChecker_RejectsUnknownGrants(t *testing.T) {
	for _, grant := range []string{"attempt:grades", "exam:create", "course:*"} {
		_, err := NewChecker(map[string][]string{"teacher": {grant}})
		assert.Error(t, err, grant)
	}
	assert.Panics(t, func() { MustChecker(map[string][]string{"x": {"users:list"}}) })
}

func TestDefaultPolicy(t *testing.T) {
	c, err := NewChecker(nil)
	require.NoError(t, err)
	for _, p := range []string{AttemptCreate, AttemptSave, AttemptSubmit, AttemptCancel, AttemptViewOwn} {
		assert.True(t, c.Has("student", p), p)
	}
	assert.False(t, c.Has("student", AttemptGrade))
	assert.False(t, c.Has("student", AttemptViewAll))
	assert.True(t, c.Has("grader", AttemptGrade))
	assert.True(t, c.Has("grader", AttemptViewAll))
	assert.False(t, c.Has("grader", AttemptCreate))
}

func TestAllowed(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Allowed(ctx, AttemptSave), "no role")
	assert.True(t, Allowed(WithRole(ctx, "grader"), AttemptViewAll))
	assert.False(t, Allowed(WithRole(ctx, "student"), AttemptViewAll))
}

func serve(h http.Handler, role string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), role))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	grade := Require(AttemptGrade)(ok)
	view := RequireAny(AttemptViewOwn, AttemptViewAll)(ok)
	cases := []struct {
		role      string
		wantGrade int
		wantView  int
	}{
		{"", http.StatusForbidden, http.StatusForbidden},
		{"student", http.StatusForbidden, http.StatusNoContent},
		{"grader", http.StatusNoContent, http.StatusNoContent},
		{"admin", http.StatusNoContent, http.StatusNoContent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.wantGrade, serve(grade, tc.role), tc.role)
		assert.Equal(t, tc.wantView, serve(view, tc.role), tc.role)
	}
}
