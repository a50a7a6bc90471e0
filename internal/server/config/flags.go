package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/libsync/internal/flagx"
)

var shortFlags = []string{"-a", "-d", "-s", "-u", "-p", "-b", "-g", "-e", "-r", "-t", "-w", "-m", "-x", "-q", "-l"}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-r string   storage root prefix
//	-t int      signed URL validity, minutes
//	-w int      max parallel transfers per sync
//	-m int      sync requests per minute per user
//	-x string   Redis address for the shared rate counter
//	-q string   plan assumed for users without one
//	-l string   log file (stdout when empty)
//
// os.Args is filtered with flagx.FilterArgs first, so -c/-config and
// unknown flags do not abort parsing.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], shortFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.StorageRoot, "r", config.StorageRoot, "storage root prefix")

	signedURLTTL := fs.Int("t", int(config.SignedURLTTL.Minutes()), "signed url validity (in minutes)")

	fs.IntVar(&config.MaxParallelTransfers, "w", config.MaxParallelTransfers, "max parallel transfers")
	fs.IntVar(&config.RateLimitPerMinute, "m", config.RateLimitPerMinute, "sync requests per minute")
	fs.StringVar(&config.RedisAddr, "x", config.RedisAddr, "redis address")
	fs.StringVar(&config.DefaultPlan, "q", config.DefaultPlan, "default plan")
	fs.StringVar(&config.LogFile, "l", config.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SignedURLTTL = time.Duration(*signedURLTTL) * time.Minute
}
