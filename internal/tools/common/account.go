package common

// GetAccountFromArgs extracts the account name from request arguments,
// defaulting to "default" when no account is named. Accounts let one server
// instance serve several mailboxes, each with its own token file.
func GetAccountFromArgs(args map[string]interface{}) string {
	if accountVal, ok := args["account"].(string); ok && accountVal != "" {
		return accountVal
	}
	return "default"
}
