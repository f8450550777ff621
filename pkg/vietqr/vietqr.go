// Package vietqr builds NAPAS VietQR payloads for bank-transfer payments.
// Everything here is pure and deterministic; rendering the payload into an
// actual image is left to the client (or the quick-link host).
package vietqr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BankAccount describes the receiving account encoded into the QR
type BankAccount struct {
	AcquirerID    string // NAPAS bank BIN, e.g. "970436"
	BankCode      string // Short code used by the quick-link host, e.g. "vietcombank"
	AccountNumber string
	AccountName   string
}

// Payload is a renderable VietQR code for one payment
type Payload struct {
	// Content is the EMVCo merchant-presented QR string, suitable for any
	// QR renderer
	Content string `json:"content"`

	// ImageURL is the img.vietqr.io quick link for clients that want a
	// ready-made image
	ImageURL string `json:"image_url"`
}

// TLV lengths are two decimal digits, so every encoded value, including the
// enclosing templates, must stay under 100 characters. These bounds keep the
// nested merchant account and additional data templates within that limit.
const (
	maxAcquirerIDLen    = 8
	maxAccountNumberLen = 19
	maxReferenceLen     = 95
)

// Build encodes amount and reference into a VietQR payload for the given
// account. Amount is in whole VND. Pure; fails only on invalid input.
func Build(account BankAccount, amount int64, referenceCode string) (*Payload, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}
	if referenceCode == "" {
		return nil, fmt.Errorf("reference code is required")
	}
	if account.AcquirerID == "" || account.AccountNumber == "" {
		return nil, fmt.Errorf("bank account descriptor is incomplete")
	}
	if len(account.AcquirerID) > maxAcquirerIDLen {
		return nil, fmt.Errorf("acquirer id exceeds %d characters", maxAcquirerIDLen)
	}
	if len(account.AccountNumber) > maxAccountNumberLen {
		return nil, fmt.Errorf("account number exceeds %d characters", maxAccountNumberLen)
	}
	if len(referenceCode) > maxReferenceLen {
		return nil, fmt.Errorf("reference code exceeds %d characters", maxReferenceLen)
	}

	return &Payload{
		Content:  emvContent(account, amount, referenceCode),
		ImageURL: imageURL(account, amount, referenceCode),
	}, nil
}

// emvContent builds the EMVCo TLV string:
// 00 payload format, 01 dynamic QR, 38 NAPAS merchant account (A000000727,
// beneficiary, QRIBFTTA service), 53 currency 704 (VND), 54 amount,
// 58 country, 62-08 transfer note, 63 CRC-16/CCITT-FALSE.
func emvContent(account BankAccount, amount int64, referenceCode string) string {
	beneficiary := tlv("00", account.AcquirerID) + tlv("01", account.AccountNumber)
	merchantInfo := tlv("00", "A000000727") + tlv("01", beneficiary) + tlv("02", "QRIBFTTA")

	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("01", "12"))
	b.WriteString(tlv("38", merchantInfo))
	b.WriteString(tlv("53", "704"))
	b.WriteString(tlv("54", strconv.FormatInt(amount, 10)))
	b.WriteString(tlv("58", "VN"))
	b.WriteString(tlv("62", tlv("08", referenceCode)))

	// CRC covers everything up to and including its own tag and length
	b.WriteString("6304")
	content := b.String()
	return content + fmt.Sprintf("%04X", crc16(content))
}

// imageURL builds the quick-link image URL
func imageURL(account BankAccount, amount int64, referenceCode string) string {
	if account.BankCode == "" {
		return ""
	}
	q := url.Values{}
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("addInfo", referenceCode)
	if account.AccountName != "" {
		q.Set("accountName", account.AccountName)
	}
	return fmt.Sprintf("https://img.vietqr.io/image/%s-%s-compact2.png?%s",
		account.BankCode, account.AccountNumber, q.Encode())
}

// tlv renders one tag-length-value element with a two-digit length
func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// crc16 is CRC-16/CCITT-FALSE as required by the EMVCo QR spec
func crc16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
