package driven

// Environment is a read-only lookup of process environment variables.
type Environment interface {
	LookupEnv(name string) (string, bool)
}
