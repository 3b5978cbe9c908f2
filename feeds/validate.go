package feeds

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<script`), regexp.MustCompile(`javascript:`), regexp.MustCompile(`vbscript:`),
	regexp.MustCompile(`onload=`), regexp.MustCompile(`onerror=`),
	regexp.MustCompile(`eval\(`), regexp.MustCompile(`alert\(`), regexp.MustCompile(`prompt\(`), regexp.MustCompile(`confirm\(`),
	regexp.MustCompile(`document\.`), regexp.MustCompile(`window\.`), regexp.MustCompile(`location\.`), regexp.MustCompile(`cookie`),
}

// ValidateFeedURL checks that inputURL is a public http(s) URL and returns it normalized
func ValidateFeedURL(inputURL string) (string, error) {
	if inputURL == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}

	// Check for excessive length (prevent DoS)
	if len(inputURL) > 2048 {
		return "", fmt.Errorf("URL length exceeds maximum allowed size")
	}

	parsedURL, err := url.Parse(inputURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %v", err)
	}

	if parsedURL.Scheme == "" {
		// "example.com/rss" parses as a path; reparse with a scheme
		parsedURL, err = url.Parse("https://" + inputURL)
		if err != nil {
			return "", fmt.Errorf("invalid URL format: %v", err)
		}
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("only HTTP and HTTPS URLs are allowed")
	}

	if parsedURL.Host == "" {
		return "", fmt.Errorf("URL must have a valid host")
	}

	if IsPrivateOrLocalhost(strings.ToLower(parsedURL.Hostname())) {
		return "", fmt.Errorf("access to private networks and localhost is not allowed")
	}

	if hasSuspiciousFileExtension(parsedURL.Path) {
		return "", fmt.Errorf("URL contains suspicious file extension")
	}

	if hasScriptInjection(parsedURL.Query()) {
		return "", fmt.Errorf("URL contains potentially malicious content")
	}

	return parsedURL.String(), nil
}

// IsPrivateOrLocalhost checks if the host is a private IP or localhost
func IsPrivateOrLocalhost(host string) bool {
	hostOnly := strings.Trim(host, "[]")

	switch hostOnly {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "0:0:0:0:0:0:0:1", "0:0:0:0:0:0:0:0":
		return true
	}

	if ip := net.ParseIP(hostOnly); ip != nil {
		return ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
	}

	privateDomainSuffixes := []string{
		".local", ".localhost", ".internal", ".corp", ".home",
		".lan", ".priv", ".test",
	}
	for _, suffix := range privateDomainSuffixes {
		if strings.HasSuffix(hostOnly, suffix) {
			return true
		}
	}

	return false
}

// hasSuspiciousFileExtension checks for executable or script extensions in the path
func hasSuspiciousFileExtension(path string) bool {
	suspiciousExtensions := []string{
		".exe", ".bat", ".cmd", ".com", ".pif", ".scr", ".vbs", ".js", ".jar",
		".php", ".asp", ".aspx", ".jsp", ".cgi", ".pl", ".py", ".rb", ".sh",
		".ps1", ".psm1", ".psd1", ".wsf", ".wsh",
	}

	lowerPath := strings.ToLower(path)
	for _, ext := range suspiciousExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return true
		}
	}
	return false
}

func hasScriptInjection(query url.Values) bool {
	for _, values := range query {
		for _, value := range values {
			lowerValue := strings.ToLower(value)
			for _, pattern := range scriptPatterns {
				if pattern.MatchString(lowerValue) {
					return true
				}
			}
		}
	}
	return false
}
