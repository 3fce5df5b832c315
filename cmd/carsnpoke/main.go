package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/carsnpoke/internal/catalog"
	"github.com/fpang/carsnpoke/internal/config"
	"github.com/fpang/carsnpoke/internal/generate"
	"github.com/fpang/carsnpoke/internal/logging"
	"github.com/fpang/carsnpoke/internal/session"
	"github.com/fpang/carsnpoke/internal/storage"
	"github.com/fpang/carsnpoke/internal/workflow"
)

// CLI flags
var (
	fileFlag     string
	pokemonFlag  string
	emailFlag    string
	passwordFlag string
	outputFlag   string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "carsnpoke",
	Short: "Composite a Pokémon into your photo",
	Long: `CarsNPoke submits a photo and a Pokémon selection to the image
generation service and saves the resulting composite image.

The photo is validated (PNG or JPEG only), uploaded to object storage
under your user namespace, and referenced in a single generation request.
Sign in first; unauthenticated submissions are blocked.

Examples:
  carsnpoke --file car.png --pokemon Pikachu --email me@example.com --password secret
  carsnpoke -f garage.jpg -p Gengar -o composite.png
  carsnpoke  # Interactive mode - file picker dialog and numbered catalog prompt`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Photo to submit (PNG or JPEG)")
	rootCmd.Flags().StringVarP(&pokemonFlag, "pokemon", "p", "", "Pokémon name from the catalog (e.g., Pikachu)")
	rootCmd.Flags().StringVar(&emailFlag, "email", "", "Account email for sign-in")
	rootCmd.Flags().StringVar(&passwordFlag, "password", "", "Account password for sign-in")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "result.png", "Where to write the generated image")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := config.Load()
	ctx := context.Background()

	if err := cfg.RequireIdentity(); err != nil {
		log.Fatal().Err(err).Msg("Missing identity configuration")
	}
	if err := cfg.RequireUpload(); err != nil {
		log.Fatal().Err(err).Msg("Missing storage configuration")
	}

	provider := session.NewHTTPProvider(cfg.IdentityURL, os.Getenv("CARSNPOKE_IDENTITY_KEY"))
	tracker := session.NewTracker(provider)
	if err := tracker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session tracker")
	}
	defer tracker.Close()

	if emailFlag != "" {
		signIn(ctx, tracker)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	region := awsCfg.Region
	if region == "" {
		region = cfg.Region
	}
	store := storage.NewS3Store(s3.NewFromConfig(awsCfg), cfg.MediaBucket, region)
	generator := generate.NewClient(cfg.GenerateURL)
	loader := catalog.NewLoader(cfg.CatalogURL)

	orch := workflow.New(tracker, store, generator)
	defer orch.Close()

	entry, ok := resolveEntry(ctx, loader)
	if !ok {
		log.Fatal().Msg("No catalog entry selected")
	}
	orch.SelectEntry(entry)

	filePath := fileFlag
	if filePath == "" {
		filePath = promptForFile()
	}
	if err := orch.SelectFile(filePath); err != nil {
		exitOnWorkflowError(err)
	}

	fmt.Printf("Generating composite with %s...\n", entry.Name)
	if err := orch.Submit(ctx); err != nil {
		exitOnWorkflowError(err)
	}

	result := orch.Result()
	if err := os.WriteFile(outputFlag, result.ImageBytes, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", outputFlag).Msg("Failed to write result image")
	}
	fmt.Printf("Saved generated image to %s\n", outputFlag)
}

// signIn performs the sign-in and waits for the session change event to
// land in the tracker, so the submission that follows sees it.
func signIn(ctx context.Context, tracker *session.Tracker) {
	signedIn := make(chan struct{}, 1)
	unsubscribe := tracker.OnChange(func(s *session.Session) {
		if s != nil {
			select {
			case signedIn <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := tracker.SignIn(ctx, session.Credentials{Email: emailFlag, Password: passwordFlag}); err != nil {
		log.Fatal().Err(err).Msg("Sign-in failed")
	}

	select {
	case <-signedIn:
	case <-time.After(10 * time.Second):
		log.Fatal().Msg("Timed out waiting for session")
	}
}

// resolveEntry turns the --pokemon flag into a catalog entry, or prompts
// interactively when the flag is missing.
func resolveEntry(ctx context.Context, loader *catalog.Loader) (catalog.Entry, bool) {
	if pokemonFlag != "" {
		entry, ok := loader.Find(ctx, pokemonFlag)
		if !ok {
			log.Fatal().Str("pokemon", pokemonFlag).Msg("Not found in catalog")
		}
		return entry, true
	}
	return promptForEntry(ctx, loader)
}

// promptForEntry lists the catalog and reads a numbered choice.
func promptForEntry(ctx context.Context, loader *catalog.Loader) (catalog.Entry, bool) {
	entries := make([]catalog.Entry, 0, 1025)
	for e := range loader.Entries(ctx) {
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		fmt.Println("Catalog unavailable; pass --pokemon once it loads.")
		return catalog.Entry{}, false
	}

	fmt.Println()
	fmt.Println("Select a Pokémon:")
	for i, e := range entries {
		fmt.Printf("  %4d. %s\n", i+1, e.Name)
	}
	fmt.Print("Choice: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return catalog.Entry{}, false
	}
	choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || choice < 1 || choice > len(entries) {
		fmt.Println("Invalid choice")
		return catalog.Entry{}, false
	}
	return entries[choice-1], true
}

// promptForFile opens a native file-pick dialog filtered to the accepted
// image types. The .jpg pattern is the picker-filter alias; the workflow
// still validates the declared MIME type.
func promptForFile() string {
	selected, err := zenity.SelectFile(
		zenity.Title("Select a photo"),
		zenity.FileFilters{
			{Name: "Images", Patterns: []string{"*.png", "*.jpeg", "*.jpg"}, CaseFold: true},
		})
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			log.Fatal().Msg("File selection canceled")
		}
		log.Fatal().Err(err).Msg("File selection failed")
	}
	return selected
}

// exitOnWorkflowError maps classified workflow errors to user-facing
// messages and exit behavior.
func exitOnWorkflowError(err error) {
	switch {
	case workflow.IsAuthRequired(err):
		fmt.Println("Please sign in to generate images (pass --email and --password).")
	case workflow.IsValidation(err):
		fmt.Printf("Please upload a PNG or JPEG image and select a Pokémon: %v\n", err)
	case workflow.IsUpload(err), workflow.IsGeneration(err):
		fmt.Printf("Failed to generate image: %v\n", err)
	default:
		fmt.Printf("Error: %v\n", err)
	}
	os.Exit(1)
}
