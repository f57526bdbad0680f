package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_CUSTOMER = "customer"
	ROLE_CLEANER  = "cleaner"
	ROLE_ADMIN    = "admin"
)

type Account struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Email              string    `gorm:"uniqueIndex;type:varchar(200);not null" json:"email" validate:"required,email,max=200"`
	Name               string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Phone              string    `gorm:"type:varchar(40)" json:"phone" validate:"max=40"`
	Role               string    `gorm:"type:varchar(20);default:'customer';index" json:"role" validate:"oneof=customer cleaner admin"`
	PasswordHash       string    `gorm:"type:text" json:"-"`
	ProviderCustomerID string    `gorm:"type:varchar(191);index" json:"provider_customer_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// NewCustomerAccount builds a customer account with a random initial password.
// The plain password is returned so the welcome mail can carry it.
func NewCustomerAccount(email, name, phone string) (*Account, string, error) {
	password, err := GeneratePassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	a := &Account{
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		Phone:        strings.TrimSpace(phone),
		Role:         ROLE_CUSTOMER,
		PasswordHash: hash,
	}
	if err := a.Validate(); err != nil {
		return nil, "", err
	}
	return a, password, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPassword verifies password against the stored hash.
func (a *Account) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// GeneratePassword returns a random 24 character hex password.
func GeneratePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (a *Account) IsCleaner() bool {
	return a.Role == ROLE_CLEANER
}
