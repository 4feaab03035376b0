package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/core/services"
	"github.com/ammerola/stockledger/test/helpers"
	"github.com/ammerola/stockledger/test/mocks"
)

func newUserService(t *testing.T) (*services.UserService, *mocks.MockUserRepository, *mocks.MockPasswordHasher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := mocks.NewMockUserRepository(ctrl)
	hasher := mocks.NewMockPasswordHasher(ctrl)
	return services.NewUserService(users, hasher, helpers.TestLogger()), users, hasher
}

func TestUserService_Create(t *testing.T) {
	tests := []struct {
		name       string
		user       domain.User
		password   string
		setupMocks func(*mocks.MockUserRepository, *mocks.MockPasswordHasher)
		wantKind   domain.ErrorKind
	}{
		{
			name:     "creates_user_with_hashed_password",
			user:     domain.User{Email: " Ops@Example.com ", Name: "Ops"},
			password: "correct-horse",
			setupMocks: func(u *mocks.MockUserRepository, h *mocks.MockPasswordHasher) {
				u.EXPECT().FindByEmail(gomock.Any(), "ops@example.com").Return(nil, nil)
				h.EXPECT().Hash("correct-horse").Return("hashed", nil)
				u.EXPECT().Create(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, user *domain.User) error {
						assert.Equal(t, "hashed", user.PasswordHash)
						assert.Equal(t, domain.RoleUser, user.Role)
						return nil
					})
			},
		},
		{
			name:     "short_password",
			user:     domain.User{Email: "ops@example.com", Name: "Ops"},
			password: "short",
			wantKind: domain.KindValidation,
		},
		{
			name:     "invalid_role",
			user:     domain.User{Email: "ops@example.com", Name: "Ops", Role: "ROOT"},
			password: "correct-horse",
			wantKind: domain.KindValidation,
		},
		{
			name:     "email_taken",
			user:     domain.User{Email: "ops@example.com", Name: "Ops"},
			password: "correct-horse",
			setupMocks: func(u *mocks.MockUserRepository, _ *mocks.MockPasswordHasher) {
				u.EXPECT().FindByEmail(gomock.Any(), "ops@example.com").
					Return(&domain.User{ID: uuid.New(), Email: "ops@example.com"}, nil)
			},
			wantKind: domain.KindConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, users, hasher := newUserService(t)
			if tt.setupMocks != nil {
				tt.setupMocks(users, hasher)
			}
			u := tt.user

			created, err := svc.Create(context.Background(), &u, tt.password)

			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, created.ID)
		})
	}
}

func TestUserService_Delete_Self(t *testing.T) {
	svc, _, _ := newUserService(t)
	id := uuid.New()

	err := svc.Delete(context.Background(), id, id)

	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestUserService_ChangePassword(t *testing.T) {
	id := uuid.New()
	stored := &domain.User{ID: id, Email: "ops@example.com", Name: "Ops", PasswordHash: "old-hash"}

	t.Run("wrong_current_password", func(t *testing.T) {
		svc, users, hasher := newUserService(t)
		users.EXPECT().FindByID(gomock.Any(), id).Return(stored, nil)
		hasher.EXPECT().Compare("old-hash", "wrong-one").Return(errors.New("mismatch"))

		err := svc.ChangePassword(context.Background(), id, "wrong-one", "brand-new-pass")

		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		assert.Contains(t, err.Error(), "current password is incorrect")
	})

	t.Run("stores_new_hash", func(t *testing.T) {
		svc, users, hasher := newUserService(t)
		users.EXPECT().FindByID(gomock.Any(), id).Return(stored, nil)
		hasher.EXPECT().Compare("old-hash", "old-password").Return(nil)
		hasher.EXPECT().Hash("brand-new-pass").Return("new-hash", nil)
		users.EXPECT().UpdatePassword(gomock.Any(), id, "new-hash").Return(nil)

		err := svc.ChangePassword(context.Background(), id, "old-password", "brand-new-pass")

		assert.NoError(t, err)
	})

	t.Run("new_password_too_short", func(t *testing.T) {
		svc, _, _ := newUserService(t)

		err := svc.ChangePassword(context.Background(), id, "old-password", "tiny")

		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})
}
