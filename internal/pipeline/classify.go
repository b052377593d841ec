package pipeline

import (
	"strings"

	"github.com/franckalain/sosscan/internal/errors"
)

var userMessages = map[errors.ErrorCategory]string{
	errors.CategoryCameraUnavailable: "Camera access is unavailable. Check the camera permission and try again.",
	errors.CategoryCaptureFailed:     "Could not capture the photo. Please try again.",
	errors.CategoryMissingInput:      "No photo to analyze. Capture a product first.",
	errors.CategoryMissingCredential: "The analysis service is not configured.",
	errors.CategoryNetwork:           "Network error. Check your connection and try again.",
	errors.CategoryUnsupportedImage:  "This photo format is not supported. Please take the photo again.",
	errors.CategoryRequestRejected:   "The analysis service rejected the request. Please try again later.",
	errors.CategoryMalformedResponse: "Could not read the analysis result. Please try again.",
	errors.CategoryUnknown:           "Something went wrong while analyzing the product.",
}

var reasonMessages = map[string]string{
	errors.ReasonModelUnavailable: "The analysis model is no longer available. Please try again later.",
	errors.ReasonBlocked:          "The analysis service declined to analyze this photo.",
}

// messageRule maps a fragment of an untyped error message to a category
type messageRule struct {
	fragments []string
	category  errors.ErrorCategory
	reason    string
}

// Checked in order; the first rule with a matching fragment wins.
var messageRules = []messageRule{
	{[]string{"permission denied", "notallowederror", "notfounderror", "camera"}, errors.CategoryCameraUnavailable, ""},
	{[]string{"capture", "encode frame", "no frame"}, errors.CategoryCaptureFailed, ""},
	{[]string{"no captured image", "no image", "missing input"}, errors.CategoryMissingInput, ""},
	{[]string{"api key not configured", "credential is not configured", "missing api key"}, errors.CategoryMissingCredential, ""},
	{[]string{"deprecated", "is not found for api version", "model not found"}, errors.CategoryRequestRejected, errors.ReasonModelUnavailable},
	{[]string{"mime", "unsupported image", "image format"}, errors.CategoryUnsupportedImage, ""},
	{[]string{"network", "failed to fetch", "connection", "timeout", "deadline exceeded", "dial tcp", "no such host"}, errors.CategoryNetwork, ""},
	{[]string{"quota", "rate limit", "resource exhausted", "api key not valid", "permission", "invalid argument", "safety", "blocked"}, errors.CategoryRequestRejected, ""},
	{[]string{"json", "parse", "unexpected token", "syntax"}, errors.CategoryMalformedResponse, ""},
}

// Classify maps a failure to exactly one category and its refinement reason.
// Categorized errors keep their category; untyped errors are matched on their message.
func Classify(err error) (errors.ErrorCategory, string) {
	if err == nil {
		return "", ""
	}
	if category := errors.CategoryOf(err); category != "" {
		return category, errors.ReasonOf(err)
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(msg, fragment) {
				return rule.category, rule.reason
			}
		}
	}
	return errors.CategoryUnknown, ""
}

// UserMessage returns the short message shown for a category
func UserMessage(category errors.ErrorCategory, reason string) string {
	if category == errors.CategoryRequestRejected {
		if msg, ok := reasonMessages[reason]; ok {
			return msg
		}
	}
	if msg, ok := userMessages[category]; ok {
		return msg
	}
	return userMessages[errors.CategoryUnknown]
}
