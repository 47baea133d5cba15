package commands

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/zotcon/internal/zotero"
)

func createItemCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-item",
		Usage: "create items from a JSON file of Zotero item objects",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "JSON payload file", Required: true},
			&cli.BoolFlag{Name: "no-auth", Usage: "fail instead of logging in when no credentials are stored"},
			&cli.StringFlag{Name: "oauth--client-key", Usage: "OAuth client key"},
			&cli.StringFlag{Name: "oauth--client-secret", Usage: "OAuth client secret"},
		},
		Action: createItemAction,
	}
}

func createItemAction(ctx context.Context, cmd *cli.Command) error {
	payload, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload %s is not valid JSON", cmd.String("file"))
	}

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	body, err := s.app.CreateItem(ctx, json.RawMessage(payload), !cmd.Bool("no-auth"))
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.Root().Writer, body)
	return nil
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "upload the file of an existing attachment item",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "attachment item key", Required: true},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "file to upload", Required: true},
			&cli.StringFlag{Name: "filename", Usage: "filename stored on the server (default: base name of --file)"},
			&cli.StringFlag{Name: "mime-type", Usage: "content type (default: detected from content)"},
			&cli.StringFlag{Name: "charset", Usage: "character set of text content"},
		},
		Action: uploadAction,
	}
}

func uploadAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	attachment := newAttachment(cmd.String("key"), path, data)
	if name := cmd.String("filename"); name != "" {
		attachment.Filename = name
	}
	if mimeType := cmd.String("mime-type"); mimeType != "" {
		attachment.MimeType = mimeType
	}
	if charset := cmd.String("charset"); charset != "" {
		attachment.Charset = charset
	}

	s, err := newSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if _, err := s.app.UploadAttachment(ctx, attachment); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(cmd.Root().Writer, "Uploaded %s to attachment %s\n", attachment.Filename, attachment.Key)
	return nil
}

// newAttachment describes data with its MD5 and a content type detected from the bytes.
func newAttachment(key, path string, data []byte) *zotero.Attachment {
	sum := md5.Sum(data)
	a := &zotero.Attachment{
		Data:     data,
		Filename: filepath.Base(path),
		Key:      key,
		MD5:      hex.EncodeToString(sum[:]),
	}

	detected := mimetype.Detect(data).String()
	mediaType, params, err := mime.ParseMediaType(detected)
	if err != nil {
		a.MimeType = "application/octet-stream"
		return a
	}
	a.MimeType = mediaType
	a.Charset = params["charset"]
	return a
}
