package config

// DB holds the connection settings for one database.
// Two instances exist in the config: the internal contact store and the
// LMS database.
type DB struct {
	Extras     string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	GormEngine string
}
