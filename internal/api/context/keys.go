package context

type Key string

const (
	Claims Key = "claims"
	Repo   Key = "repo"
	Params Key = "params"
)
