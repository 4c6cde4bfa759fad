package mpesa

import (
	"encoding/base64"
	"time"
)

// TimestampLayout is the YYYYMMDDHHMMSS format Daraja expects for STK push.
const TimestampLayout = "20060102150405"

// Timestamp formats t in local time.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// Password derives the STK push password for the given timestamp.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
