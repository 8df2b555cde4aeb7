package analysis

import (
	"strings"
)

// Boolean signal names. Every name listed here is present in the Flags
// map of any SignalSet produced by DetectSignals.
const (
	SignalDockerfile       = "has_dockerfile"
	SignalCIConfig         = "has_ci_config"
	SignalEnvExample       = "has_env_example"
	SignalBuildScript      = "has_build_script"
	SignalTests            = "has_tests"
	SignalLintConfig       = "has_lint_config"
	SignalTypeScriptConfig = "has_typescript_config"
	SignalFrontendManifest = "has_frontend_manifest"
	SignalBackendManifest  = "has_backend_manifest"
	SignalPaymentLibrary   = "has_payment_library"
	SignalUpdateTimestamp  = "has_update_timestamp"
)

// Numeric signal names. Every name listed here is present in the
// Counts map of any SignalSet produced by DetectSignals.
const (
	SignalStars              = "stars"
	SignalForks              = "forks"
	SignalOpenIssues         = "open_issues"
	SignalDaysSinceUpdate    = "days_since_update"
	SignalReadmeBytes        = "readme_bytes"
	SignalTrendingKeywords   = "trending_keywords"
	SignalStrategicKeywords  = "strategic_keywords"
	SignalMonetizationPaths  = "monetization_paths"
	SignalPaymentConfigFiles = "payment_config_files"
	SignalModernConfigFiles  = "modern_config_files"
	SignalTechCategoryHits   = "tech_category_hits"
	SignalDocsPaths          = "docs_paths"
)

// FlagSignalNames is the fixed registry of boolean signals.
var FlagSignalNames = []string{
	SignalDockerfile,
	SignalCIConfig,
	SignalEnvExample,
	SignalBuildScript,
	SignalTests,
	SignalLintConfig,
	SignalTypeScriptConfig,
	SignalFrontendManifest,
	SignalBackendManifest,
	SignalPaymentLibrary,
	SignalUpdateTimestamp,
}

// CountSignalNames is the fixed registry of numeric signals.
var CountSignalNames = []string{
	SignalStars,
	SignalForks,
	SignalOpenIssues,
	SignalDaysSinceUpdate,
	SignalReadmeBytes,
	SignalTrendingKeywords,
	SignalStrategicKeywords,
	SignalMonetizationPaths,
	SignalPaymentConfigFiles,
	SignalModernConfigFiles,
	SignalTechCategoryHits,
	SignalDocsPaths,
}

// Declarative marker tables. Detection is table-driven so adding an
// ecosystem never touches scorer code.
var (
	trendingKeywords  = []string{"ai", "ml", "saas", "marketplace", "automation", "analytics", "crypto"}
	strategicKeywords = []string{"platform", "framework", "library", "tool", "system"}

	monetizationKeywords = []string{
		"stripe", "paypal", "subscription", "payment", "billing",
		"pricing", "checkout", "commerce", "shop", "marketplace",
	}

	paymentLibraries   = []string{"stripe", "@stripe", "paypal"}
	paymentConfigFiles = []string{"stripe.config", "payment.config", ".env.example"}
	modernConfigFiles  = []string{"next.config.js", "vite.config.js", "tsconfig.json"}

	ciPaths   = []string{".github/workflows", ".gitlab-ci.yml", "vercel.json", "netlify.toml"}
	testPaths = []string{"tests/", "test/", "__tests__", "spec/"}
	lintFiles = []string{".eslintrc", ".prettierrc", "pyproject.toml", ".flake8"}
	docsPaths = []string{"docs/", "deploy.md", "contributing.md"}

	// Manifests scanned for high-value technology markers.
	techManifests = []string{"package.json", "requirements.txt"}

	highValueTech = map[string][]string{
		"saas":       {"next.js", "react", "vue", "stripe", "supabase", "vercel"},
		"ai_ml":      {"tensorflow", "pytorch", "openai", "langchain", "huggingface", "ollama"},
		"blockchain": {"solidity", "web3", "ethereum", "hardhat"},
		"api":        {"fastapi", "express", "graphql", "rest"},
		"mobile":     {"react-native", "flutter", "swift", "kotlin"},
		"ecommerce":  {"shopify", "woocommerce", "stripe", "paypal"},
	}
)

// DetectSignals derives the complete SignalSet from a snapshot. Every
// detector is a pure function of the snapshot and independent of the
// others; partial metadata degrades to absent signals, never an error.
func DetectSignals(snap RepositorySnapshot) SignalSet {
	files := lowerAll(snap.Files)
	description := strings.ToLower(snap.Description)

	set := SignalSet{
		Flags:  make(map[string]bool, len(FlagSignalNames)),
		Counts: make(map[string]float64, len(CountSignalNames)),
	}

	set.Flags[SignalDockerfile] = hasPath(files, "dockerfile")
	set.Flags[SignalCIConfig] = hasAnyPath(files, ciPaths)
	set.Flags[SignalEnvExample] = hasPath(files, ".env.example")
	set.Flags[SignalBuildScript] = manifestHasBuildScript(snap.Manifests)
	set.Flags[SignalTests] = hasAnyPath(files, testPaths)
	set.Flags[SignalLintConfig] = hasAnyPath(files, lintFiles)
	set.Flags[SignalTypeScriptConfig] = hasPath(files, "tsconfig.json")
	set.Flags[SignalFrontendManifest] = hasPath(files, "package.json")
	set.Flags[SignalBackendManifest] = hasPath(files, "requirements.txt") || hasPath(files, "go.mod")
	set.Flags[SignalPaymentLibrary] = manifestContainsAny(snap.Manifests, paymentLibraries)
	set.Flags[SignalUpdateTimestamp] = !snap.UpdatedAt.IsZero()

	set.Counts[SignalStars] = float64(max(snap.Stars, 0))
	set.Counts[SignalForks] = float64(max(snap.Forks, 0))
	set.Counts[SignalOpenIssues] = float64(max(snap.OpenIssues, 0))
	set.Counts[SignalDaysSinceUpdate] = daysSinceUpdate(snap)
	set.Counts[SignalReadmeBytes] = float64(max(snap.ReadmeBytes, 0))
	set.Counts[SignalTrendingKeywords] = float64(countKeywords(description, trendingKeywords))
	set.Counts[SignalStrategicKeywords] = float64(countKeywords(description, strategicKeywords))
	set.Counts[SignalMonetizationPaths] = float64(countPathMatches(files, monetizationKeywords))
	set.Counts[SignalPaymentConfigFiles] = float64(countPresentPaths(files, paymentConfigFiles))
	set.Counts[SignalModernConfigFiles] = float64(countPresentPaths(files, modernConfigFiles))
	set.Counts[SignalTechCategoryHits] = float64(countTechCategoryHits(snap.Manifests))
	set.Counts[SignalDocsPaths] = float64(countPresentPaths(files, docsPaths))

	return set
}

func lowerAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = strings.ToLower(p)
	}
	return out
}

// hasPath matches a root-level file or directory in the lowercased
// listing. Directory markers end with "/" and match by prefix.
func hasPath(files []string, marker string) bool {
	if strings.HasSuffix(marker, "/") {
		for _, f := range files {
			if strings.HasPrefix(f, marker) {
				return true
			}
		}
		return false
	}
	for _, f := range files {
		if f == marker || strings.HasPrefix(f, marker+"/") {
			return true
		}
	}
	return false
}

func hasAnyPath(files []string, markers []string) bool {
	for _, m := range markers {
		if hasPath(files, m) {
			return true
		}
	}
	return false
}

func countPresentPaths(files []string, markers []string) int {
	count := 0
	for _, m := range markers {
		if hasPath(files, m) {
			count++
		}
	}
	return count
}

// countPathMatches counts listing entries containing at least one of
// the keywords. Each file counts once regardless of how many keywords
// it matches.
func countPathMatches(files []string, keywords []string) int {
	count := 0
	for _, f := range files {
		for _, kw := range keywords {
			if strings.Contains(f, kw) {
				count++
				break
			}
		}
	}
	return count
}

func countKeywords(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

func manifestContainsAny(manifests map[string]string, markers []string) bool {
	for _, content := range manifests {
		lowered := strings.ToLower(content)
		for _, m := range markers {
			if strings.Contains(lowered, m) {
				return true
			}
		}
	}
	return false
}

func manifestHasBuildScript(manifests map[string]string) bool {
	content, ok := manifests["package.json"]
	if !ok {
		return false
	}
	scriptsIdx := strings.Index(content, `"scripts"`)
	if scriptsIdx < 0 {
		return false
	}
	return strings.Contains(content[scriptsIdx:], `"build"`)
}

// countTechCategoryHits counts high-value technology categories per
// scanned manifest. A category found in two manifests counts twice.
func countTechCategoryHits(manifests map[string]string) int {
	hits := 0
	for _, name := range techManifests {
		content, ok := manifests[name]
		if !ok {
			continue
		}
		lowered := strings.ToLower(content)
		for _, techs := range highValueTech {
			for _, tech := range techs {
				if strings.Contains(lowered, tech) {
					hits++
					break
				}
			}
		}
	}
	return hits
}

// daysSinceUpdate returns whole days between the last update and the
// snapshot fetch time, or -1 when either timestamp is unknown.
func daysSinceUpdate(snap RepositorySnapshot) float64 {
	if snap.UpdatedAt.IsZero() || snap.FetchedAt.IsZero() {
		return -1
	}
	days := snap.FetchedAt.Sub(snap.UpdatedAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return float64(int(days))
}
