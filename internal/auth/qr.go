package auth

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// MFAKeyQRCode renders an MFA key as a PNG QR code data URL so the tenant can
// show it to the account holder without handling the image itself.
func MFAKeyQRCode(key string) (string, error) {
	png, err := qrcode.Encode(key, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to render mfa key qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
