// Package queue defines message payloads exchanged over the message broker.
package queue

// PasswordResetQueue is the durable queue carrying reset notifications.
const PasswordResetQueue = "affiliate.password_reset"

// PasswordResetEvent is published when an administrator resets an
// affiliate's password.  TempPassword is set only when the system generated
// the new password; a password typed by the admin is never sent.
type PasswordResetEvent struct {
    EventID      string `json:"event_id"`
    CouponCode   string `json:"coupon_code"`
    Email        string `json:"email"`
    ResetBy      string `json:"reset_by"`
    TempPassword string `json:"temp_password,omitempty"`
    NotifyEmail  bool   `json:"notify_email"`
    SupportEmail string `json:"support_email,omitempty"`
    ResetAt      string `json:"reset_at"`
}
