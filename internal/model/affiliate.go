package model

import (
    "regexp"
    "strings"
    "time"

    validation "github.com/go-ozzo/ozzo-validation/v4"
    "github.com/go-ozzo/ozzo-validation/v4/is"
)

// Role names stored in affiliate_users.role and carried in the JWT role claim.
const (
    RoleAffiliate = "AFFILIATE"
    RoleAdmin     = "ADMIN"
)

// Payment methods accepted on affiliate profiles.  An empty method means the
// affiliate has not configured payouts yet.
var PaymentMethods = []string{"paypal", "bank_transfer", "wise", "crypto"}

// CouponPattern is the character set and length accepted for coupon codes
// after normalization.
var CouponPattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// NormalizeCoupon trims and upper-cases a coupon code.  Lookups and inserts
// always go through this so codes compare case-insensitively.
func NormalizeCoupon(code string) string {
    return strings.ToUpper(strings.TrimSpace(code))
}

// Affiliate represents a row of the `affiliate_users` table.  The coupon
// code is the natural key used by every other table; ID exists for token
// ownership only.
//
// Fields:
//  ID             – primary key identifier.
//  CouponCode     – unique, upper-case coupon code used to log in.
//  PasswordHash   – bcrypt hash, or a legacy plaintext value awaiting upgrade.
//  Email          – contact address used for notifications and admin login.
//  Role           – AFFILIATE or ADMIN.
//  PaymentMethod  – one of PaymentMethods or empty.
//  PaymentDetails – free-form payout details (account, wallet address).
//  NotifyEmail    – whether account emails should be sent.
//  NotifyPayouts  – whether payout emails should be sent.
//  ViewAllUsage   – admin preference: default usage scope is "all" when true.
//  IsActive       – inactive accounts cannot log in.
type Affiliate struct {
    ID             uint64    `json:"id"`
    CouponCode     string    `json:"coupon_code"`
    PasswordHash   string    `json:"-"`
    Email          string    `json:"email"`
    Role           string    `json:"role"`
    PaymentMethod  string    `json:"payment_method"`
    PaymentDetails string    `json:"payment_details"`
    NotifyEmail    bool      `json:"notify_email"`
    NotifyPayouts  bool      `json:"notify_payouts"`
    ViewAllUsage   bool      `json:"view_all_usage"`
    IsActive       bool      `json:"is_active"`
    CreatedAt      time.Time `json:"created_at"`
    UpdatedAt      time.Time `json:"updated_at"`
}

// IsAdmin reports whether the account carries the ADMIN role.
func (a Affiliate) IsAdmin() bool { return a.Role == RoleAdmin }

// AffiliateFilter narrows admin listings.  Query matches a substring of the
// coupon code or the email.
type AffiliateFilter struct {
    Query  string
    Role   string
    Limit  int
    Offset int
}

// ProfileUpdate carries the fields an affiliate may change on their own
// account.  Nil pointers leave the column untouched.
type ProfileUpdate struct {
    Email          *string `json:"email"`
    PaymentMethod  *string `json:"payment_method"`
    PaymentDetails *string `json:"payment_details"`
    NotifyEmail    *bool   `json:"notify_email"`
    NotifyPayouts  *bool   `json:"notify_payouts"`
}

// AdminUpdate extends ProfileUpdate with fields only administrators may set.
type AdminUpdate struct {
    ProfileUpdate
    Role     *string `json:"role"`
    IsActive *bool   `json:"is_active"`
}

// Validate checks the fields that are present.  An empty payment method
// clears the configured method.
func (p ProfileUpdate) Validate() error {
    return validation.ValidateStruct(&p,
        validation.Field(&p.Email, validation.NilOrNotEmpty, is.EmailFormat, validation.Length(0, 255)),
        validation.Field(&p.PaymentMethod, validation.In(anySlice(PaymentMethods)...)),
        validation.Field(&p.PaymentDetails, validation.Length(0, 500)),
    )
}

// Validate adds the admin-only fields to ProfileUpdate's checks.
func (u AdminUpdate) Validate() error {
    if err := u.ProfileUpdate.Validate(); err != nil {
        return err
    }
    return validation.ValidateStruct(&u,
        validation.Field(&u.Role, validation.NilOrNotEmpty, validation.In(RoleAffiliate, RoleAdmin)),
    )
}

func anySlice(in []string) []interface{} {
    out := make([]interface{}, len(in))
    for i, s := range in {
        out[i] = s
    }
    return out
}
