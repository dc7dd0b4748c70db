// Package keyloader resolves the PEM encoded signing key from configuration.
//
// Sources are tried in order: inline value, file path, then an AWS Secrets
// Manager secret. Inline and secret values are normalised because secret
// stores and environment files routinely mangle line breaks.
package keyloader

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
)

const pemLineLength = 64

var (
	pemHeaderRe = regexp.MustCompile(`-----BEGIN [A-Z0-9 ]+-----`)
	pemFooterRe = regexp.MustCompile(`-----END [A-Z0-9 ]+-----`)
)

// SecretsAPI is the part of the Secrets Manager client the loader uses.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type Source struct {
	// Inline is a PEM value taken verbatim from the environment.
	Inline string
	// Path is a PEM file; relative paths are resolved against BaseDir.
	Path    string
	BaseDir string
	// SecretID names a Secrets Manager secret whose string value is a PEM.
	SecretID string
	Secrets  SecretsAPI
}

// Load returns the PEM text from the first configured source.
func Load(ctx context.Context, src Source) (string, error) {
	if strings.TrimSpace(src.Inline) != "" {
		slog.DebugContext(ctx, "loading private key from inline value")
		return Normalize(src.Inline)
	}

	if src.Path != "" {
		path := ResolvePath(src.Path, src.BaseDir)
		slog.DebugContext(ctx, "loading private key from file", "path", path)
		b, err := os.ReadFile(path)
		if err != nil {
			return "", errs.Config(fmt.Sprintf("private key file not readable at %s", path), err)
		}
		if strings.TrimSpace(string(b)) == "" {
			return "", errs.Config(fmt.Sprintf("private key file %s is empty", path), nil)
		}
		return string(b), nil
	}

	if src.SecretID != "" {
		if src.Secrets == nil {
			return "", errs.Config("secrets manager client not configured", nil)
		}
		slog.DebugContext(ctx, "loading private key from secrets manager", "secret_id", src.SecretID)
		out, err := src.Secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(src.SecretID),
		})
		if err != nil {
			return "", errs.Config("failed to get private key secret", err)
		}
		value := aws.ToString(out.SecretString)
		if strings.TrimSpace(value) == "" {
			return "", errs.Config(fmt.Sprintf("secret %s has no string value", src.SecretID), nil)
		}
		return Normalize(value)
	}

	return "", errs.Config("no private key configured: set OB_PRIVATE_KEY, OB_PRIVATE_KEY_PATH or OB_PRIVATE_KEY_SECRET_ID", nil)
}

// ResolvePath returns path unchanged when absolute, else joined to baseDir.
func ResolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Normalize repairs an inline PEM value. Each step only runs when the input
// needs it: percent-decoding, literal "\n" expansion, and re-wrapping of a
// single-line PEM with header and footer markers.
func Normalize(value string) (string, error) {
	out := strings.TrimSpace(value)

	if strings.Contains(out, "%") {
		decoded, err := url.PathUnescape(out)
		if err != nil {
			return "", errs.Config("private key is not valid percent-encoded text", err)
		}
		out = decoded
	}

	if strings.Contains(out, `\n`) {
		out = strings.ReplaceAll(out, `\r\n`, "\n")
		out = strings.ReplaceAll(out, `\n`, "\n")
	}

	if strings.Contains(out, "BEGIN") && strings.Contains(out, "END") && !strings.Contains(out, "\n") {
		return rewrap(out)
	}

	return out, nil
}

// rewrap rebuilds a standard PEM layout from a single-line export.
func rewrap(line string) (string, error) {
	headerLoc := pemHeaderRe.FindStringIndex(line)
	footerLoc := pemFooterRe.FindStringIndex(line)
	if headerLoc == nil || footerLoc == nil || footerLoc[0] < headerLoc[1] {
		return "", errs.Config("private key has BEGIN/END text but no PEM markers", nil)
	}

	header := line[headerLoc[0]:headerLoc[1]]
	footer := line[footerLoc[0]:footerLoc[1]]
	body := strings.Join(strings.Fields(line[headerLoc[1]:footerLoc[0]]), "")

	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for len(body) > pemLineLength {
		b.WriteString(body[:pemLineLength])
		b.WriteByte('\n')
		body = body[pemLineLength:]
	}
	if body != "" {
		b.WriteString(body)
		b.WriteByte('\n')
	}
	b.WriteString(footer)
	b.WriteByte('\n')
	return b.String(), nil
}
