package ports

// ManifestRenderer expands placeholders in a manifest document before it is
// parsed.
type ManifestRenderer interface {
	// Render returns raw with every placeholder resolved from vars.
	Render(raw []byte, vars map[string]string) ([]byte, error)
}
