// internal/service/template_service.go
package service

import (
    "regexp"
    "strings"
    "time"

    "github.com/quillsend/quillsend-backend/internal/model"
)

// userDateFormat is the user-facing rendering of stored UTC instants.
const userDateFormat = "02/01/2006 15:04"

var placeholderPattern = regexp.MustCompile(`(?i)\{\{\s*(nom|name|email|date)\s*\}\}`)

// RenderTemplate substitutes recipient placeholders, case-insensitive and
// whitespace-tolerant. Unknown placeholders are left untouched.
func RenderTemplate(text string, r model.Recipient, now time.Time) string {
    return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
        sub := placeholderPattern.FindStringSubmatch(m)
        switch strings.ToLower(sub[1]) {
        case "nom", "name":
            return r.DisplayName
        case "email":
            return r.Email
        case "date":
            return now.Format("02/01/2006")
        }
        return m
    })
}
