package gateway

import (
	qrcode "github.com/skip2/go-qrcode"
)

// CheckoutQR renders a checkout URL as a PNG QR code for the operator board.
func CheckoutQR(checkoutURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(checkoutURL, qrcode.Medium, size)
}
