package main

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveDSN determines the Postgres connection string for the target
// environment. An explicit DATABASE_URL wins; otherwise the DSN is
// derived from the Supabase project URL and service role key.
//
// getenv is injected so the derivation logic is testable without
// mutating the process environment.
func ResolveDSN(getenv func(string) string) (string, error) {
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	supabaseURL := getenv("SUPABASE_URL")
	serviceKey := getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || serviceKey == "" {
		return "", fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required (or set DATABASE_URL)")
	}

	ref, err := projectRef(supabaseURL)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres",
		url.QueryEscape(serviceKey), ref), nil
}

// projectRef extracts the project ref from a Supabase project URL like
// https://abcdefgh.supabase.co.
func projectRef(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid SUPABASE_URL %q: %w", raw, err)
	}

	host := u.Host
	if host == "" {
		host = u.Path // tolerate a bare hostname without scheme
	}
	ref, ok := strings.CutSuffix(host, ".supabase.co")
	if !ok || ref == "" || strings.Contains(ref, ".") {
		return "", fmt.Errorf("cannot derive project ref from SUPABASE_URL %q", raw)
	}
	return ref, nil
}
