package guardrail

import "regexp"

// Category names a harmful-intent pattern family.
type Category string

const (
	CategorySystemCompromise      Category = "system_compromise"
	CategoryDataTheft             Category = "data_theft"
	CategoryDestructiveBulk       Category = "destructive_bulk"
	CategoryUnauthorizedFinancial Category = "unauthorized_financial"
)

// pattern pairs a compiled regex with its category and a short name that is
// reported as Verdict.Pattern.
type pattern struct {
	name     string
	category Category
	re       *regexp.Regexp
}

// Patterns are matched case-insensitively against normalised text. The
// window quantifiers allow up to a few words between the verb and its object.
var defaultPatterns = []pattern{
	{
		name:     "hack",
		category: CategorySystemCompromise,
		re:       regexp.MustCompile(`(?i)\bhack(s|ed|ing)?\b`),
	},
	{
		name:     "exploit",
		category: CategorySystemCompromise,
		re:       regexp.MustCompile(`(?i)\bexploit(s|ed|ing)?\b`),
	},
	{
		name:     "bypass_security",
		category: CategorySystemCompromise,
		re:       regexp.MustCompile(`(?i)\bbypass(es|ed|ing)?\b(\s+\S+){0,3}?\s+(security|authentication|auth|firewall|login|2fa|mfa)\b`),
	},
	{
		name:     "steal",
		category: CategoryDataTheft,
		re:       regexp.MustCompile(`(?i)\b(steal(s|ing)?|stole|stolen)\b`),
	},
	{
		name:     "extract_credentials",
		category: CategoryDataTheft,
		re:       regexp.MustCompile(`(?i)\b(extract|dump|harvest|scrape|leak)(s|ed|ing)?\b(\s+\S+){0,4}?\s+(credentials?|passwords?|api\s+keys?|secrets?|tokens?)\b`),
	},
	{
		name:     "exfiltrate",
		category: CategoryDataTheft,
		re:       regexp.MustCompile(`(?i)\bexfiltrat(e|es|ed|ing|ion)\b`),
	},
	{
		name:     "delete_all",
		category: CategoryDestructiveBulk,
		re:       regexp.MustCompile(`(?i)\b(delete|erase|destroy|purge)(s|d|ed|ing)?\b(\s+\S+){0,2}?\s+(all|every|everything|entire)\b`),
	},
	{
		name:     "wipe",
		category: CategoryDestructiveBulk,
		re:       regexp.MustCompile(`(?i)\bwip(e|es|ed|ing)\b(\s+\S+){0,3}?\s+(out|clean|all|everything|database|databases|disk|disks|drive|drives|server|servers|data|files|records|backups?|accounts?)\b`),
	},
	{
		name:     "unauthorized_transfer",
		category: CategoryUnauthorizedFinancial,
		re:       regexp.MustCompile(`(?i)\b(unauthori[sz]ed|secret(ly)?|without\s+(\S+\s+){0,2}?(permission|consent|approval|authori[sz]ation))\b(\s+\S+){0,5}?\s+(transfer|wire|payment|funds|money)s?\b`),
	},
	{
		name:     "transfer_unauthorized",
		category: CategoryUnauthorizedFinancial,
		re:       regexp.MustCompile(`(?i)\b(transfer|wire|move|send)(s|red|ring|d|ed|ing)?\b(\s+\S+){0,5}?\s+(without\s+(\S+\s+){0,2}?(permission|consent|approval|authori[sz]ation)|secretly|unauthori[sz]ed)\b`),
	},
}
