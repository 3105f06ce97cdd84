package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lms-access/internal/domain/auth"
	apperrors "github.com/target/lms-access/internal/errors"
	"github.com/target/lms-access/internal/mocks"
	mockauth "github.com/target/lms-access/internal/mocks/auth"
	"github.com/target/lms-access/internal/testutil"
	"go.uber.org/mock/gomock"
)

func newTestResolver(store *mockauth.MemoryProfileStore, now time.Time) *ProfileResolver {
	return NewProfileResolver(ProfileResolverOptions{Store: store}).WithClock(testutil.FixedTimeFunc(now))
}

func TestProfileResolver_FirstSignInCreatesStudent(t *testing.T) {
	t0 := testutil.TestTime()
	store := mockauth.NewMemoryProfileStore()
	r := newTestResolver(store, t0)

	p, err := r.Resolve(context.Background(), domainauth.Identity{ID: "u1", Email: "ada@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, domainauth.RoleStudent, p.Role)
	assert.Equal(t, "ada", p.DisplayName)
	assert.True(t, p.CreatedAt.Equal(t0))
	assert.True(t, p.LastLogin.Equal(t0))
	assert.NotNil(t, p.Extensions.Student)
	assert.Equal(t, 1, store.Creates())

	// A second resolution finds the record and does not create another.
	later := t0.Add(time.Hour)
	r.WithClock(testutil.FixedTimeFunc(later))
	p, err = r.Resolve(context.Background(), domainauth.Identity{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Creates())
	assert.True(t, p.CreatedAt.Equal(t0))
	assert.True(t, p.LastLogin.Equal(later))
}

func TestProfileResolver_DisplayNameFallbacks(t *testing.T) {
	tests := []struct {
		name string
		id   domainauth.Identity
		want string
	}{
		{name: "display name wins", id: domainauth.Identity{ID: "a", DisplayName: "Ada", Email: "x@example.com"}, want: "Ada"},
		{name: "email local part", id: domainauth.Identity{ID: "b", Email: "grace@example.com"}, want: "grace"},
		{name: "fallback", id: domainauth.Identity{ID: "c"}, want: domainauth.FallbackDisplayName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(mockauth.NewMemoryProfileStore(), testutil.TestTime())
			p, err := r.Resolve(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.DisplayName)
		})
	}
}

func TestProfileResolver_TouchFailureIsBestEffort(t *testing.T) {
	existing := testutil.Lecturer("u2")
	store := mockauth.NewMemoryProfileStore(existing)
	store.TouchErr = errors.New("write refused")
	r := newTestResolver(store, testutil.TestTime().Add(time.Hour))

	p, err := r.Resolve(context.Background(), testutil.Identity("u2"))
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleLecturer, p.Role)
	assert.True(t, p.LastLogin.Equal(existing.LastLogin), "lastLogin unchanged when the touch fails")
}

func TestProfileResolver_Unavailable(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		store := mockauth.NewMemoryProfileStore()
		store.GetErr = errors.New("permission denied")
		_, err := newTestResolver(store, testutil.TestTime()).Resolve(context.Background(), testutil.Identity("u4"))
		require.Error(t, err)
		assert.True(t, apperrors.IsProfileUnavailable(err))
		assert.Equal(t, 0, store.Creates())
	})

	t.Run("create fails", func(t *testing.T) {
		store := mockauth.NewMemoryProfileStore()
		store.CreateErr = errors.New("quota exceeded")
		_, err := newTestResolver(store, testutil.TestTime()).Resolve(context.Background(), testutil.Identity("u4"))
		assert.True(t, apperrors.IsProfileUnavailable(err))
	})

	t.Run("empty identity", func(t *testing.T) {
		_, err := newTestResolver(mockauth.NewMemoryProfileStore(), testutil.TestTime()).
			Resolve(context.Background(), domainauth.Identity{})
		assert.True(t, apperrors.IsProfileUnavailable(err))
	})
}

func TestProfileResolver_LostCreateRaceRereads(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)
	winner := testutil.NewProfile("u5").WithDisplayName("Winner").Build()

	gomock.InOrder(
		store.EXPECT().Get(gomock.Any(), "u5").Return(domainauth.Profile{}, apperrors.NotFound("missing")),
		store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(apperrors.Conflict("exists")),
		store.EXPECT().Get(gomock.Any(), "u5").Return(winner, nil),
	)

	r := NewProfileResolver(ProfileResolverOptions{Store: store})
	p, err := r.Resolve(context.Background(), testutil.Identity("u5"))
	require.NoError(t, err)
	assert.Equal(t, "Winner", p.DisplayName)
}

func TestProfileResolver_OneWritePerResolution(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockProfileStore(ctrl)
	existing := testutil.Student("u6")

	store.EXPECT().Get(gomock.Any(), "u6").Return(existing, nil)
	store.EXPECT().TouchLastLogin(gomock.Any(), "u6", gomock.Any()).Return(nil).Times(1)
	store.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	_, err := NewProfileResolver(ProfileResolverOptions{Store: store}).Resolve(context.Background(), testutil.Identity("u6"))
	require.NoError(t, err)
}

func TestProfileResolver_Reload(t *testing.T) {
	store := mockauth.NewMemoryProfileStore(testutil.Admin("u7"))
	r := newTestResolver(store, testutil.TestTime())

	p, err := r.Reload(context.Background(), "u7")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)

	_, err = r.Reload(context.Background(), "missing")
	assert.True(t, apperrors.IsProfileUnavailable(err))
}

func TestProfileResolver_ResumeTouchesOnlyUnrecordedSignIns(t *testing.T) {
	signedIn := testutil.TestTime()
	later := signedIn.Add(2 * time.Hour)

	tests := []struct {
		name      string
		lastLogin time.Time
		want      time.Time
	}{
		{name: "sign-in already recorded", lastLogin: signedIn, want: signedIn},
		{name: "recorded after sign-in", lastLogin: signedIn.Add(time.Minute), want: signedIn.Add(time.Minute)},
		{name: "sign-in never recorded", lastLogin: signedIn.Add(-24 * time.Hour), want: later},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mockauth.NewMemoryProfileStore(testutil.NewProfile("u8").WithLastLogin(tt.lastLogin).Build())
			r := newTestResolver(store, later)

			p, err := r.Resume(context.Background(), testutil.Identity("u8"), signedIn)
			require.NoError(t, err)
			assert.True(t, p.LastLogin.Equal(tt.want), "lastLogin = %v, want %v", p.LastLogin, tt.want)

			stored, err := store.Get(context.Background(), "u8")
			require.NoError(t, err)
			assert.True(t, stored.LastLogin.Equal(tt.want))
		})
	}
}

func TestProfileResolver_ResumeCreatesMissingProfile(t *testing.T) {
	store := mockauth.NewMemoryProfileStore()
	r := newTestResolver(store, testutil.TestTime())

	p, err := r.Resume(context.Background(), testutil.Identity("u9"), testutil.TestTime().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleStudent, p.Role)
	assert.Equal(t, 1, store.Creates())
}
