package storage

// Config holds remote backend settings. Local paths need none.
type Config struct {
	S3  S3Config  `yaml:"s3"`
	GCS GCSConfig `yaml:"gcs"`
}

// S3Config configures the S3 backend. Without static keys the default AWS credential chain is used.
type S3Config struct {
	Region          string `yaml:"region" default:"us-east-1"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
}

// GCSConfig configures the GCS backend. Without a credentials file application default credentials are used.
type GCSConfig struct {
	Endpoint        string `yaml:"endpoint"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.S3.AccessKeyID != "" && c.S3.SecretAccessKey == "" {
		return ErrMissingSecret
	}

	return nil
}
