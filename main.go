package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/util"
)

// Constants for server configuration.
const (
	ServerReadTimeout       = 30 * time.Second
	ServerReadHeaderTimeout = 3 * time.Second
	MaxRequestSize          = humanize.MiByte
	ServerResponseTimeout   = 5 * time.Second
)

// contextKey is a type for context keys used in this package.
type contextKey string

// configContextKey is the context key for storing *config.Config.
const configContextKey contextKey = "config"

var (
	Version   = "v0.1.0" //nolint:gochecknoglobals
	Platform  = ""       //nolint:gochecknoglobals
	GitCommit = ""       //nolint:gochecknoglobals
	GitBranch = ""       //nolint:gochecknoglobals
	BuildTime = ""       //nolint:gochecknoglobals
)

func buildVersion() string {
	return Version + " " + GitCommit + " " + BuildTime
}

func configFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(configContextKey).(*config.Config) //nolint:forcetypeassert
}

//nolint:gochecknoglobals
var rootCmd = &cobra.Command{
	Use:   "pdsh",
	Short: "Percona document shell for MongoDB",

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return errors.Wrap(err, "load config")
		}

		logLevel, err := zerolog.ParseLevel(cfg.Log.Level)
		if err != nil {
			logLevel = zerolog.InfoLevel
		}

		lg := log.InitGlobals(logLevel, cfg.Log.JSON, cfg.Log.NoColor)
		ctx := lg.WithContext(context.Background())
		ctx = context.WithValue(ctx, configContextKey, cfg)
		cmd.SetContext(ctx)

		config.WarnDeprecatedEnvVars(ctx)

		return nil
	},
}

//nolint:gochecknoglobals
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		info := fmt.Sprintf("Version:   %s\nPlatform:  %s\nGitCommit: "+
			"%s\nGitBranch: %s\nBuildTime: %s\nGoVersion: %s",
			Version,
			Platform,
			GitCommit,
			GitBranch,
			BuildTime,
			runtime.Version(),
		)

		cmd.Println(info)
	},
}

//nolint:gochecknoglobals
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the connection to the database endpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.Ping(ctx)
		})
	},
}

//nolint:gochecknoglobals
var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the visible schemas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.Schemas(ctx)
		})
	},
}

//nolint:gochecknoglobals
var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

//nolint:gochecknoglobals
var collectionCreateCmd = &cobra.Command{
	Use:   "create <schema> <collection>",
	Short: "Create a collection, and its schema when missing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.CreateCollection(ctx, args[0], args[1])
		})
	},
}

//nolint:gochecknoglobals
var collectionDropCmd = &cobra.Command{
	Use:   "drop <schema> <collection>",
	Short: "Drop a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.DropCollection(ctx, args[0], args[1])
		})
	},
}

//nolint:gochecknoglobals
var addCmd = &cobra.Command{
	Use:   "add <schema> <collection> <json>...",
	Short: "Add documents to a collection atomically",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.Add(ctx, args[0], args[1], args[2:])
		})
	},
}

//nolint:gochecknoglobals
var findCmd = &cobra.Command{
	Use:   "find <schema> <collection> [expression]",
	Short: "Find documents matching an expression",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queryFlags(cmd, args)
		if err != nil {
			return err
		}

		q.Offset, _ = cmd.Flags().GetInt64("offset")
		q.Sort, _ = cmd.Flags().GetStringSlice("sort")

		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.Find(ctx, args[0], args[1], q)
		})
	},
}

//nolint:gochecknoglobals
var removeCmd = &cobra.Command{
	Use:   "remove <schema> <collection> <expression>",
	Short: "Remove documents matching an expression",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queryFlags(cmd, args)
		if err != nil {
			return err
		}

		return withSession(cmd, func(ctx context.Context, sh *shell) error {
			return sh.Remove(ctx, args[0], args[1], q)
		})
	},
}

//nolint:gochecknoglobals
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the replica set admin server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log.Ctx(cmd.Context()).Info("Percona Document Shell " + buildVersion())

		return runServer(cmd.Context(), configFrom(cmd))
	},
}

//nolint:gochecknoglobals
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Get the status of the admin server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return NewClient(viper.GetInt("port")).Status(cmd.Context())
	},
}

//nolint:gochecknoglobals
var replicasetCmd = &cobra.Command{
	Use:     "replicaset",
	Aliases: []string{"rs"},
	Short:   "Manage replica sets through the admin server",
}

//nolint:gochecknoglobals
var rsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a replica set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		req := createRequest{
			Name:        args[0],
			Description: description,
		}

		return NewClient(viper.GetInt("port")).Create(cmd.Context(), req)
	},
}

//nolint:gochecknoglobals
var rsDropCmd = &cobra.Command{
	Use:   "drop <name>",
	Short: "Drop a replica set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dropDefault, _ := cmd.Flags().GetBool("drop-default")

		req := dropRequest{
			Name:        args[0],
			DropDefault: dropDefault,
		}

		return NewClient(viper.GetInt("port")).Drop(cmd.Context(), req)
	},
}

//nolint:gochecknoglobals
var rsAddSeedCmd = &cobra.Command{
	Use:   "add-seed <replicaset> <instance>",
	Short: "Add the seed instance of a replica set",
	Long: "Add the seed instance of a replica set. The instance is a " +
		"[user[:password]@]host[:port] string or a JSON object of connection options.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := newInstanceRequest(args[0], args[1])
		if err != nil {
			return err
		}

		return NewClient(viper.GetInt("port")).AddSeedInstance(cmd.Context(), req)
	},
}

//nolint:gochecknoglobals
var rsAddInstanceCmd = &cobra.Command{
	Use:   "add-instance <replicaset> <instance>",
	Short: "Add an instance to a replica set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := newInstanceRequest(args[0], args[1])
		if err != nil {
			return err
		}

		return NewClient(viper.GetInt("port")).AddInstance(cmd.Context(), req)
	},
}

//nolint:gochecknoglobals
var rsRemoveInstanceCmd = &cobra.Command{
	Use:   "remove-instance <replicaset> <instance>",
	Short: "Remove an instance from a replica set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := newInstanceRequest(args[0], args[1])
		if err != nil {
			return err
		}

		return NewClient(viper.GetInt("port")).RemoveInstance(cmd.Context(), req)
	},
}

//nolint:gochecknoglobals
var rsDescribeCmd = &cobra.Command{
	Use:   "describe [name]",
	Short: "Describe a replica set, or the default one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return NewClient(viper.GetInt("port")).Describe(cmd.Context(), firstArg(args))
	},
}

//nolint:gochecknoglobals
var rsStatusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Probe the members of a replica set, or of the default one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return NewClient(viper.GetInt("port")).MemberStatus(cmd.Context(), firstArg(args))
	},
}

//nolint:gochecknoglobals
var rsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List replica sets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return NewClient(viper.GetInt("port")).List(cmd.Context())
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output log in JSON format")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "Disable log color")

	rootCmd.PersistentFlags().Int("port", config.DefaultServerPort, "Admin server port number")

	rootCmd.PersistentFlags().String("host", "", "Database host")
	rootCmd.PersistentFlags().Int("db-port", config.DefaultDBPort, "Database port")
	rootCmd.PersistentFlags().String("user", "", "Database user")
	rootCmd.PersistentFlags().String("password", "", "Database password")

	rootCmd.PersistentFlags().String("mongodb-operation-timeout", config.DefaultMongoDBOperationTimeout.String(),
		"Timeout for MongoDB operations (e.g., 30s, 5m)")
	rootCmd.PersistentFlags().String("connect-timeout", config.DefaultConnectTimeout.String(),
		"Timeout for connecting to the database endpoint")
	rootCmd.PersistentFlags().String("max-document-size", "", "")
	rootCmd.PersistentFlags().MarkHidden("max-document-size") //nolint:errcheck

	rootCmd.PersistentFlags().StringSlice("include-namespaces", nil,
		"Namespaces visible to the shell (e.g. db1.collection1,db2.*)")
	rootCmd.PersistentFlags().StringSlice("exclude-namespaces", nil,
		"Namespaces hidden from the shell (e.g. db3.collection3,db4.*)")

	serveCmd.Flags().String("probe-timeout", config.DefaultProbeTimeout.String(),
		"Timeout for probing replica set instances")
	serveCmd.Flags().String("metadata-schema", config.DefaultMetadataSchema,
		"Schema that stores replica set metadata")

	for _, cmd := range []*cobra.Command{findCmd, removeCmd} {
		cmd.Flags().StringArray("bind", nil, "Bind a placeholder value (name=value)")
		cmd.Flags().Int64("limit", -1, "Maximum number of documents (-1 = no limit)")
	}

	findCmd.Flags().Int64("offset", 0, "Number of documents to skip")
	findCmd.Flags().StringSlice("sort", nil, "Sort specification (e.g. \"name ASC\",\"age DESC\")")

	rsCreateCmd.Flags().String("description", "", "Replica set description")
	rsDropCmd.Flags().Bool("drop-default", false, "Allow dropping the default replica set")

	collectionCmd.AddCommand(collectionCreateCmd, collectionDropCmd)
	replicasetCmd.AddCommand(
		rsCreateCmd,
		rsDropCmd,
		rsAddSeedCmd,
		rsAddInstanceCmd,
		rsRemoveInstanceCmd,
		rsDescribeCmd,
		rsStatusCmd,
		rsListCmd,
	)
	rootCmd.AddCommand(
		versionCmd,
		pingCmd,
		schemasCmd,
		collectionCmd,
		addCmd,
		findCmd,
		removeCmd,
		serveCmd,
		statusCmd,
		replicasetCmd,
	)

	err := rootCmd.Execute()
	if err != nil {
		zerolog.Ctx(context.Background()).Fatal().Err(err).Msg("")
		os.Exit(1)
	}
}

// runServer starts the HTTP server with the provided configuration.
func runServer(ctx context.Context, cfg *config.Config) error {
	err := config.Validate(cfg)
	if err != nil {
		return errors.Wrap(err, "validate options")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, os.Kill)
	defer stop()

	srv, err := createServer(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "new server")
	}

	go func() {
		<-ctx.Done()

		err := util.CtxWithTimeout(context.Background(), config.DisconnectTimeout, srv.Close)
		if err != nil {
			log.New("server").Error(err, "Close server")
		}

		os.Exit(0)
	}()

	port := cfg.Port
	if port == 0 {
		port = config.DefaultServerPort
	}

	addr := fmt.Sprintf("localhost:%d", port)
	httpServer := http.Server{
		Addr:    addr,
		Handler: srv.Handler(),

		ReadTimeout:       ServerReadTimeout,
		ReadHeaderTimeout: ServerReadHeaderTimeout,
	}

	log.Ctx(ctx).Info("Starting HTTP server at http://" + addr)

	return httpServer.ListenAndServe() //nolint:wrapcheck
}

// newInstanceRequest builds an instance request from a command line argument. An argument
// starting with "{" is a JSON object of connection options, anything else is an address.
func newInstanceRequest(replicaSet, instance string) (instanceRequest, error) {
	req := instanceRequest{ReplicaSet: replicaSet}

	instance = strings.TrimSpace(instance)
	if !strings.HasPrefix(instance, "{") {
		req.Instance = instance

		return req, nil
	}

	var opts map[string]any

	err := json.Unmarshal([]byte(instance), &opts)
	if err != nil {
		return req, errors.Wrap(err, "parse instance options")
	}

	req.Instance = opts

	return req, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}

	return args[0]
}
