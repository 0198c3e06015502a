package marketplace

import (
	"context"
	"errors"
	"log"
	"net/mail"
	"slices"
	"strings"
)

// ProfilePatch updates the self-service part of a user profile.
type ProfilePatch struct {
	Name   *string  `json:"name,omitempty"`
	Email  *string  `json:"email,omitempty"`
	Bio    *string  `json:"bio,omitempty"`
	Skills []string `json:"skills,omitempty"`
}

// UserService manages accounts keyed by wallet.
type UserService struct {
	store        Store
	adminWallets []string
	options
}

// NewUserService creates a user service. Wallets in adminWallets log in as admins.
func NewUserService(store Store, adminWallets []string, opts ...Option) *UserService {
	return &UserService{store: store, adminWallets: adminWallets, options: buildOptions(opts)}
}

// Login finds or creates the account behind wallet and stamps last_login.
func (s *UserService) Login(ctx context.Context, wallet string) (User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return User{}, ValidationError("wallet_address", "wallet address is required")
	}
	var out User
	err := s.store.Atomic(ctx, func(tx Tx) error {
		now := s.now()
		user, err := tx.GetUserByWallet(ctx, wallet)
		switch {
		case errors.Is(err, ErrNotFound):
			user = User{
				ID:            s.newID(),
				WalletAddress: wallet,
				Role:          RoleUser,
				CreatedAt:     now,
			}
			log.Printf("new user %s for wallet %s", user.ID, wallet)
		case err != nil:
			return err
		}
		if slices.Contains(s.adminWallets, wallet) {
			user.Role = RoleAdmin
		}
		user.LastLogin = &now
		out = user
		return tx.SaveUser(ctx, user)
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// GetUser returns one account.
func (s *UserService) GetUser(ctx context.Context, id string) (User, error) {
	return s.store.GetUser(ctx, id)
}

// GetUserByWallet returns the account behind a wallet address.
func (s *UserService) GetUserByWallet(ctx context.Context, wallet string) (User, error) {
	return s.store.GetUserByWallet(ctx, wallet)
}

// ListUsers returns every account, oldest first.
func (s *UserService) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateProfile applies patch to the caller's own profile. Ratings on skills
// that are kept survive.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (User, error) {
	if patch.Email != nil && *patch.Email != "" {
		if _, err := mail.ParseAddress(*patch.Email); err != nil {
			return User{}, ValidationError("email", "invalid email address")
		}
	}
	if patch.Bio != nil && len([]rune(*patch.Bio)) > 500 {
		return User{}, ValidationError("bio", "bio cannot exceed 500 characters")
	}
	var out User
	err := s.store.Atomic(ctx, func(tx Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			user.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Email != nil {
			user.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Bio != nil {
			user.Bio = strings.TrimSpace(*patch.Bio)
		}
		if patch.Skills != nil {
			user.Skills = mergeSkills(user.Skills, normalizeSkills(patch.Skills))
		}
		out = user
		return tx.SaveUser(ctx, user)
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

func mergeSkills(have []Skill, names []string) []Skill {
	out := make([]Skill, 0, len(names))
	for _, n := range names {
		i := slices.IndexFunc(have, func(s Skill) bool { return strings.EqualFold(s.Name, n) })
		if i >= 0 {
			out = append(out, have[i])
			continue
		}
		out = append(out, Skill{Name: n})
	}
	return out
}
