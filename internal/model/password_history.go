package model

import "time"

// ActorSelf marks a password change made by the account owner.
const ActorSelf = "self"

// PasswordChange is a row of `password_change_history`.  ChangedBy is either
// ActorSelf or the coupon code of the administrator who reset the password.
type PasswordChange struct {
    ID         uint64    `json:"id"`
    CouponCode string    `json:"coupon_code"`
    ChangedBy  string    `json:"changed_by"`
    ChangedAt  time.Time `json:"changed_at"`
}
