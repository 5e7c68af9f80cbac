package cox

// Account identifies one Cox residential account within a run.
//
// The username is the sign-in name without the email domain suffix.
type Account struct {
	Username string
}
