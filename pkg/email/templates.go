package email

import (
	"fmt"
	"html"
)

const accentInvite = "#B45309"
const accentReset = "#DC2626"

// layout wraps body in the shared KegTracker email frame.
func layout(title, accent, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%[1]s</title>
</head>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f5f1ea;">
    <table role="presentation" style="width: 100%%; border-collapse: collapse;">
        <tr>
            <td align="center" style="padding: 32px 0;">
                <table role="presentation" style="width: 560px; border-collapse: collapse; background-color: #ffffff; border-radius: 8px;">
                    <tr>
                        <td style="padding: 28px; text-align: center; background-color: %[2]s; border-radius: 8px 8px 0 0;">
                            <h1 style="margin: 0; color: #ffffff; font-size: 24px;">%[1]s</h1>
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 32px 28px; font-size: 15px; line-height: 22px; color: #333333;">
%[3]s
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 20px; text-align: center; background-color: #faf7f2; border-radius: 0 0 8px 8px; font-size: 12px; color: #999999;">
                            KegTracker
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>
`, title, accent, body)
}

func button(accent, href, label string) string {
	return fmt.Sprintf(`<p style="margin: 28px 0; text-align: center;"><a href="%s" style="display: inline-block; padding: 12px 36px; background-color: %s; color: #ffffff; text-decoration: none; border-radius: 6px; font-weight: bold;">%s</a></p>`,
		html.EscapeString(href), accent, label)
}

// InviteEmailTemplate renders the brewery invitation email.
func InviteEmailTemplate(registrationURL string) string {
	body := `<p>You have been invited to join a brewery on KegTracker.</p>
<p>Click the button below to choose a password and activate your account:</p>
` + button(accentInvite, registrationURL, "Create account") + `
<p style="font-size: 13px; color: #666666;">The link can be used once and expires soon. If you were not expecting this invitation you can ignore this email.</p>`
	return layout("KegTracker Registration", accentInvite, body)
}

// PasswordResetEmailTemplate renders the password reset email.
func PasswordResetEmailTemplate(email, resetURL string) string {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>We received a request to reset your KegTracker password.</p>
`, html.EscapeString(email)) + button(accentReset, resetURL, "Reset password") + `
<p style="font-size: 13px; color: #666666;">This link expires in 1 hour and works only once. If you did not request a reset, no action is needed.</p>`
	return layout("Reset your password", accentReset, body)
}
