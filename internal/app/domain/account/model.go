package account

import (
	"strings"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
)

// Profile is the customer record kept alongside the Supabase Auth user.
type Profile struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Phone     string    `json:"phone" db:"phone"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// Normalize trims fields and rewrites the phone number in E.164 form. It
// returns the name of the first invalid field, or "".
func (u *ProfileUpdate) Normalize() string {
	u.FullName = strings.TrimSpace(u.FullName)
	u.Address = strings.TrimSpace(u.Address)
	u.Phone = strings.TrimSpace(u.Phone)

	if len(u.FullName) > 120 {
		return "full_name"
	}
	if len(u.Address) > 500 {
		return "address"
	}
	if u.Phone != "" {
		phone, ok := order.NormalizePhone(u.Phone)
		if !ok {
			return "phone"
		}
		u.Phone = phone
	}
	return ""
}

// Identity is the authenticated caller extracted from a session token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}
