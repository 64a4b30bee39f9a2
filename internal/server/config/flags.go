package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-o string   bcrypt hash of the operator password
//	-t int      operator token validity, minutes
//	-w int      retention window, minutes
//	-l int      drain batch limit
//	-m int      artifact removal timeout, seconds
//	-f string   transport base URL (e.g., "https://api.telegram.org")
//	-k string   transport bot token
//	-n string   source channel id
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers (minutes or seconds) and then
//     converted to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-d", "-s", "-o", "-t", "-w", "-l", "-m",
		"-f", "-k", "-n", "-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.OperatorSecretHash, "o", config.OperatorSecretHash, "operator password bcrypt hash")

	tokenValidityDuration := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")
	retentionWindow := fs.Int("w", int(config.RetentionWindow.Minutes()), "retention_window (in minutes)")
	fs.IntVar(&config.DrainBatchLimit, "l", config.DrainBatchLimit, "drain batch limit")
	removeTimeout := fs.Int("m", int(config.RemoveTimeout.Seconds()), "remove_timeout (in seconds)")

	fs.StringVar(&config.TransportBaseURL, "f", config.TransportBaseURL, "transport base URL")
	fs.StringVar(&config.TransportToken, "k", config.TransportToken, "transport bot token")
	fs.StringVar(&config.SourceChannel, "n", config.SourceChannel, "source channel id")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidityDuration) * time.Minute
	config.RetentionWindow = time.Duration(*retentionWindow) * time.Minute
	config.RemoveTimeout = time.Duration(*removeTimeout) * time.Second
}
