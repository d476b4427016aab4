package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lansync/internal/codec"
	"lansync/internal/reconcile"
	"lansync/internal/session"
)

func entity() reconcile.PayloadTarget {
	return reconcile.PayloadTarget{"x": 5.0, "y": 5.0, "life": int64(3), "armor": int64(2)}
}

func TestPolicy_RemoteOverwritesEverythingPresent(t *testing.T) {
	p := reconcile.NewPolicy()
	dst := entity()

	applied := p.Apply(reconcile.Remote, codec.Payload{"x": 1.0, "life": int64(1)}, dst)

	assert.Equal(t, []string{"life", "x"}, applied)
	assert.Equal(t, 1.0, dst["x"])
	assert.Equal(t, int64(1), dst["life"])
	// absent fields keep their value
	assert.Equal(t, 5.0, dst["y"])
	assert.Equal(t, int64(2), dst["armor"])
}

func TestPolicy_OwnAppliesOnlyHostAuthoritativeFields(t *testing.T) {
	p := reconcile.NewPolicy()
	dst := entity()

	// the host's echo of my own position is stale and must be ignored
	applied := p.Apply(reconcile.Own, codec.Payload{"x": 100.0, "y": 100.0, "life": int64(2)}, dst)

	assert.Equal(t, []string{"life"}, applied)
	assert.Equal(t, 5.0, dst["x"])
	assert.Equal(t, 5.0, dst["y"])
	assert.Equal(t, int64(2), dst["life"])
}

func TestPolicy_ExplicitZeroOverwritesMissingDoesNot(t *testing.T) {
	p := reconcile.NewPolicy()
	dst := entity()

	p.Apply(reconcile.Own, codec.Payload{"life": int64(0)}, dst)
	assert.Equal(t, int64(0), dst["life"])
	assert.Equal(t, int64(2), dst["armor"])

	p.Apply(reconcile.Own, codec.Payload{}, dst)
	assert.Equal(t, int64(0), dst["life"])
	assert.Equal(t, int64(2), dst["armor"])
}

func TestPolicy_UploadCannotTouchOutcomeState(t *testing.T) {
	p := reconcile.NewPolicy()
	dst := entity()

	applied := p.Apply(reconcile.Upload, codec.Payload{"x": 7.0, "life": int64(99), "armor": int64(99)}, dst)

	assert.Equal(t, []string{"x"}, applied)
	assert.Equal(t, 7.0, dst["x"])
	assert.Equal(t, int64(3), dst["life"])
	assert.Equal(t, int64(2), dst["armor"])
}

func TestPolicy_CustomFieldsAndFilter(t *testing.T) {
	p := reconcile.NewPolicy("mana")
	assert.True(t, p.HostAuthoritative("mana"))
	assert.False(t, p.HostAuthoritative("life"))

	rec := codec.Payload{"mana": int64(4), "life": int64(1), "x": 1.0}
	assert.Equal(t, codec.Payload{"mana": int64(4)}, p.Filter(reconcile.Own, rec))
	assert.Equal(t, codec.Payload{"life": int64(1), "x": 1.0}, p.Filter(reconcile.Upload, rec))
	assert.Equal(t, rec, p.Filter(reconcile.Remote, rec))
	assert.Empty(t, p.Filter(reconcile.Relation(0), rec))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		role    session.Role
		local   session.ParticipantID
		subject session.ParticipantID
		want    reconcile.Relation
	}{
		{"host applies uploads", session.RoleHost, 1, 3, reconcile.Upload},
		{"client own entity", session.RoleClient, 2, 2, reconcile.Own},
		{"client other entity", session.RoleClient, 2, 3, reconcile.Remote},
		{"client before id", session.RoleClient, 0, 0, reconcile.Remote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reconcile.Classify(tt.role, tt.local, tt.subject))
		})
	}
}

func TestPolicy_ApplyWritesExactlyWhatFilterKeeps(t *testing.T) {
	p := reconcile.NewPolicy("mana")
	rec := codec.Payload{"mana": int64(4), "life": int64(1), "x": 1.0}

	for _, rel := range []reconcile.Relation{reconcile.Remote, reconcile.Own, reconcile.Upload} {
		dst := codec.Payload{}
		p.Apply(rel, rec, dst)
		assert.Equal(t, p.Filter(rel, rec), dst, "relation %v", rel)
	}
}
