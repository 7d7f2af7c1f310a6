package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/faanross/simulacra_img/internal/decoder"
)

var channelNames = map[int][]string{
	1: {"Gray"},
	3: {"Red", "Green", "Blue"},
	4: {"Red", "Green", "Blue", "Alpha"},
}

func printAnalysis(report decoder.SecurityReport) {
	fmt.Printf("\n🔒 Security Analysis:\n")
	fmt.Printf("   Samples: %s\n", humanize.Comma(int64(report.Samples)))
	fmt.Printf("   LSB Distribution:\n")
	fmt.Printf("     0s: %.1f%%\n", report.ZeroRatio)
	fmt.Printf("     1s: %.1f%%\n", 100-report.ZeroRatio)
	fmt.Printf("   LSB Entropy: %.3f bits/byte (max 8.000)\n", report.Entropy)

	if report.LooksRandom() {
		fmt.Printf("   🔐 Appears to contain encrypted/random data\n")
	} else {
		fmt.Printf("   📸 Appears to be a natural image\n")
	}

	fmt.Printf("\n   Color Channel Analysis:\n")
	names := channelNames[len(report.ChannelMeans)]
	for i, mean := range report.ChannelMeans {
		name := fmt.Sprintf("Channel %d", i)
		if i < len(names) {
			name = names[i]
		}
		fmt.Printf("     %s avg: %.1f\n", name, mean)
	}
}

func printMessage(result *decoder.ExtractedMessage, verbose bool) {
	fmt.Printf("\n✅ MESSAGE SUCCESSFULLY DECRYPTED\n")
	fmt.Println("=" + strings.Repeat("=", 40))

	fmt.Printf("\n📊 Extraction Statistics:\n")
	fmt.Printf("   Encrypted size: %s\n", humanize.Bytes(uint64(result.EncryptedSize)))
	fmt.Printf("   Decrypted size: %s\n", humanize.Bytes(uint64(result.DecryptedSize)))
	fmt.Printf("   Authentication: %v\n", result.Authenticated)

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("📝 DECRYPTED MESSAGE:")
	fmt.Println(strings.Repeat("=", 60))

	message := string(result.Message)
	if verbose {
		fmt.Println(message)
	} else {
		preview, truncated := previewMessage(message)
		fmt.Println(preview)
		if truncated {
			fmt.Printf("\n(Use -verbose flag to see full message)\n")
		}
	}

	fmt.Println(strings.Repeat("=", 60))
}

const (
	previewLimit = 500
	previewEdge  = 200
)

// previewMessage shortens long messages to their first and last characters,
// cutting on rune boundaries.
func previewMessage(message string) (string, bool) {
	runes := []rune(message)
	if len(runes) <= previewLimit {
		return message, false
	}
	return fmt.Sprintf("%s\n... [%d more characters] ...\n%s",
		string(runes[:previewEdge]),
		len(runes)-2*previewEdge,
		string(runes[len(runes)-previewEdge:])), true
}
