// Package keytool implements the developer command line used to bootstrap
// keys and exercise the upload protocol by hand.
package keytool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/worker/exifmeta"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the keytool command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "keytool",
		Short:        "Keys, signatures and test photos for geoupload",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newSignCmd(), newSessionCmd(), newStampCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	var outDir, name string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an ECDSA P-256 key pair",
		Long:  "Writes <name>.key (PKCS#8) and <name>.pub (PKIX) into the output directory, or prints both PEMs when no directory is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptox.GenerateKeyPair()
			if err != nil {
				return err
			}
			privPEM, err := cryptox.EncodePrivateKeyPEM(key)
			if err != nil {
				return err
			}
			pubPEM, err := cryptox.EncodePublicKeyPEM(&key.PublicKey)
			if err != nil {
				return err
			}

			if outDir == "" {
				fmt.Fprint(cmd.OutOrStdout(), privPEM, pubPEM)
				return nil
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return err
			}
			privPath := filepath.Join(outDir, name+".key")
			pubPath := filepath.Join(outDir, name+".pub")
			if err := os.WriteFile(privPath, []byte(privPEM), 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "directory for the key files")
	cmd.Flags().StringVarP(&name, "name", "n", "client", "base name of the key files")
	return cmd
}

func newSignCmd() *cobra.Command {
	var keyPath, photoID, filename string
	var timestamp int64
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the client upload message for a photo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if photoID == "" || filename == "" || timestamp == 0 {
				return errors.New("--photo-id, --filename and --timestamp are required")
			}
			privPEM, err := cryptox.ResolvePEM(keyPath)
			if err != nil {
				return err
			}
			key, err := cryptox.ParsePrivateKeyPEM(privPEM)
			if err != nil {
				return err
			}
			sig, err := cryptox.SignMessage(key, cryptox.UploadMessage(photoID, filename, timestamp))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "client.key", "private key file or inline PEM")
	cmd.Flags().StringVar(&photoID, "photo-id", "", "photo id from the authorization")
	cmd.Flags().StringVar(&filename, "filename", "", "filename sent to the authority")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "upload_authorized_at as unix seconds")
	return cmd
}

func newSessionCmd() *cobra.Command {
	var userID, secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Mint an HS256 session token accepted by the authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || secret == "" {
				return errors.New("--user and --secret are required")
			}
			tok, err := auth.GenerateSessionToken(userID, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().StringVarP(&secret, "secret", "s", os.Getenv("GEOUPLOAD_SESSION_SECRET"), "session secret")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newStampCmd() *cobra.Command {
	var in, out, bearingTag string
	var lat, lon, bearing, alt float64
	var withAlt bool
	cmd := &cobra.Command{
		Use:   "stamp",
		Short: "Write GPS and bearing EXIF into a JPEG",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return errors.New("--in is required")
			}
			if out == "" {
				out = in
			}
			tag, err := parseBearingTag(bearingTag)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			g := exifmeta.GPS{
				Latitude:   &lat,
				Longitude:  &lon,
				Bearing:    &bearing,
				BearingTag: tag,
				DateTime:   time.Now(),
			}
			if withAlt {
				g.Altitude = &alt
			}
			stamped, err := exifmeta.Reattach(data, exifmeta.Build(g))
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			if err := os.WriteFile(out, stamped, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stamped %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "source JPEG")
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination (defaults to --in)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in decimal degrees")
	cmd.Flags().Float64Var(&bearing, "bearing", 0, "compass bearing in degrees")
	cmd.Flags().StringVar(&bearingTag, "bearing-tag", "img-direction", "img-direction, track or dest-bearing")
	cmd.Flags().Float64Var(&alt, "alt", 0, "altitude in metres")
	cmd.Flags().BoolVar(&withAlt, "with-alt", false, "write --alt")
	return cmd
}

func parseBearingTag(s string) (exifmeta.BearingTag, error) {
	switch s {
	case "img-direction", "":
		return exifmeta.BearingImgDirection, nil
	case "track":
		return exifmeta.BearingTrack, nil
	case "dest-bearing":
		return exifmeta.BearingDestBearing, nil
	default:
		return 0, fmt.Errorf("unknown bearing tag %q", s)
	}
}
