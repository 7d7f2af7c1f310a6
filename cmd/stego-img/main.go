package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/faanross/simulacra_img/internal/decoder"
	"github.com/faanross/simulacra_img/internal/encoder"
	"github.com/faanross/simulacra_img/internal/imageio"
	"github.com/faanross/simulacra_img/internal/scrypto"
	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/faanross/simulacra_img/internal/stego"
)

const passwordEnv = "STEGO_PASSWORD"

type options struct {
	input    string
	output   string
	text     string
	password string
	tryList  string
	save     string
	analyze  bool
	verbose  bool
}

func main() {
	// Command line arguments
	embedMode := flag.Bool("embed", false, "Hide -text inside -input and write -output")
	extractMode := flag.Bool("extract", false, "Recover the hidden message from -input")
	inputFile := flag.String("input", "", "Cover image (embed) or stego image (extract), .png or .bmp")
	outputFile := flag.String("output", "", "Stego image to write (embed only)")
	text := flag.String("text", "", "Message to hide (embed only)")
	password := flag.String("password", "", "Passphrase (falls back to $"+passwordEnv+", then a prompt or a generated one)")
	iterations := flag.Int("iterations", spec.PBKDF2_ITERS, "PBKDF2 iterations, must match between embed and extract")
	concurrent := flag.Bool("concurrent", false, "Run the payload and masking passes in parallel")
	authenticate := flag.Bool("authenticate", false, "Append and verify an HMAC-SHA256 tag")
	hardened := flag.Bool("hardened", false, "Derive the bit placement from a PBKDF2 key")
	analyze := flag.Bool("analyze", false, "Show LSB security analysis")
	tryList := flag.String("trylist", "", "Comma-separated passwords to try (extract only)")
	save := flag.String("save", "", "Save extracted message to file")
	verbose := flag.Bool("verbose", false, "Debug logging and full message output")

	flag.Parse()

	if *embedMode == *extractMode {
		usageError("choose exactly one of -embed or -extract")
	}
	if *inputFile == "" {
		usageError("please provide an image with -input")
	}
	if *embedMode && (*outputFile == "" || *text == "") {
		usageError("-embed needs -output and -text")
	}

	var outPath string
	if *embedMode {
		outPath = imageio.ResolveOutputPath(*outputFile)
		if _, err := imageio.FormatFor(outPath); err != nil {
			usageError(err.Error())
		}
	}

	cfg := spec.Config{
		Iterations:          *iterations,
		Concurrent:          *concurrent,
		Authenticate:        *authenticate,
		HardenedPermutation: *hardened,
	}
	if err := cfg.Validate(); err != nil {
		usageError(err.Error())
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	opts := options{
		input:    *inputFile,
		output:   outPath,
		text:     *text,
		password: *password,
		tryList:  *tryList,
		save:     *save,
		analyze:  *analyze,
		verbose:  *verbose,
	}

	if *embedMode {
		runEmbed(cfg, logger, opts)
	} else {
		runExtract(cfg, logger, opts)
	}
}

func usageError(msg string) {
	fmt.Fprintf(os.Stderr, "❌ %s\n\n", msg)
	flag.Usage()
	os.Exit(2)
}

// passphrase resolves the flag, then the environment. ok is false when
// neither is set.
func passphrase(flagValue string) ([]byte, bool) {
	if flagValue != "" {
		return []byte(flagValue), true
	}
	if env := os.Getenv(passwordEnv); env != "" {
		return []byte(env), true
	}
	return nil, false
}

// checkOutput fails when path cannot hold a buffer with this many channels,
// before any key derivation or embedding runs.
func checkOutput(path string, channels int) error {
	format, err := imageio.FormatFor(path)
	if err != nil {
		return err
	}
	return imageio.CheckEncodable(format, channels)
}

func runEmbed(cfg spec.Config, logger *logrus.Logger, opts options) {
	fmt.Println("\n🔐 Secure Image Steganography Encoder")
	fmt.Println("=" + strings.Repeat("=", 40))

	pb, err := imageio.Load(opts.input)
	if err != nil {
		log.Fatalf("❌ Error loading cover: %v", err)
	}
	printImage(opts.input, pb)

	if err := checkOutput(opts.output, pb.Channels); err != nil {
		log.Fatalf("❌ Output error: %v", err)
	}

	pass, ok := passphrase(opts.password)
	generated := false
	if !ok {
		phrase, err := scrypto.GeneratePassphrase()
		if err != nil {
			log.Fatalf("❌ Passphrase generation failed: %v", err)
		}
		pass = []byte(phrase)
		generated = true
	}

	stegoEncoder := encoder.NewSecureStegoEncoder(cfg, logger)
	report, err := stegoEncoder.EmbedMessage(pb, []byte(opts.text), pass)
	if err != nil {
		log.Fatalf("❌ Encoding failed: %v", err)
	}

	if opts.analyze {
		printAnalysis(decoder.AnalyzeSecurity(pb))
	}

	if err := imageio.Save(opts.output, pb); err != nil {
		log.Fatalf("❌ Saving failed: %v", err)
	}

	fmt.Printf("\n📊 Embedding Statistics:\n")
	fmt.Printf("   Message: %s\n", humanize.Bytes(uint64(report.MessageSize)))
	fmt.Printf("   Payload: %s (%s bits)\n", humanize.Bytes(uint64(report.BlobSize)), humanize.Comma(int64(report.BitsUsed)))
	fmt.Printf("   Capacity: %s\n", humanize.Bytes(uint64(report.Capacity)))
	fmt.Printf("   Utilization: %.2f%%\n", report.Utilization)

	fmt.Printf("\n✅ Secure steganography complete!\n")
	fmt.Printf("   Output: %s\n", opts.output)
	fmt.Printf("   Security: AES-256-CBC + PBKDF2-%d", cfg.Iterations)
	if cfg.Authenticate {
		fmt.Printf(" + HMAC-SHA256")
	}
	fmt.Println()

	if generated {
		fmt.Printf("\n🔑 Generated passphrase: %s\n", pass)
		fmt.Printf("   Keep it safe, it is the only way to recover the message\n")
	}
	fmt.Printf("\n🔓 To decode: use -extract with the same passphrase and flags\n")
}

func runExtract(cfg spec.Config, logger *logrus.Logger, opts options) {
	fmt.Println("\n🔓 Secure Image Steganography Decoder")
	fmt.Println("=" + strings.Repeat("=", 40))

	pb, err := imageio.Load(opts.input)
	if err != nil {
		log.Fatalf("❌ Error loading image: %v", err)
	}
	printImage(opts.input, pb)

	// Security analysis mode
	if opts.analyze {
		printAnalysis(decoder.AnalyzeSecurity(pb))
		return
	}

	stegDecoder := decoder.NewSecureStegoDecoder(cfg, logger)

	var result *decoder.ExtractedMessage
	if opts.tryList != "" {
		var matched string
		result, matched, err = stegDecoder.TryMultiplePasswords(pb, strings.Split(opts.tryList, ","))
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Printf("\n🔑 Password found: %s\n", matched)
	} else {
		pass, ok := passphrase(opts.password)
		if !ok {
			if !scrypto.CanPrompt() {
				usageError("no passphrase: use -password or $" + passwordEnv)
			}
			pass, err = scrypto.GetSecurePassword("\n🔑 Enter password: ")
			if err != nil {
				log.Fatalf("❌ Password error: %v", err)
			}
		}

		result, err = stegDecoder.ExtractMessage(pb, pass)
		scrypto.Wipe(pass)
		if err != nil {
			log.Fatalf("❌ Extraction failed: %v", err)
		}
	}

	printMessage(result, opts.verbose)

	// Save to file if requested
	if opts.save != "" {
		if err := os.WriteFile(opts.save, result.Message, 0644); err != nil {
			log.Fatalf("❌ Error saving output: %v", err)
		}
		fmt.Printf("\n💾 Message saved to: %s\n", opts.save)
	}

	fmt.Println("\n✅ Secure decoding complete!")
}

func printImage(path string, pb *stego.PixelBuffer) {
	fmt.Printf("\n📷 Image loaded:\n")
	fmt.Printf("   File: %s\n", path)
	fmt.Printf("   Dimensions: %dx%d, %d channel(s)\n", pb.Width, pb.Height, pb.Channels)
	fmt.Printf("   Capacity: %s\n", humanize.Bytes(uint64(stego.Capacity(pb))))
}
