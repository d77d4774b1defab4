package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/petr-muller/civicfeed/internal/civic/compose"
)

type postOptions struct {
	title       string
	description string
	location    string
	ward        string
	imagePath   string
	lat         float64
	lng         float64
	noAI        bool
}

func newPostCmd() *cobra.Command {
	var o postOptions
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Report a new issue",
		Long: `Report a new issue with a photo. The photo is uploaded to the image host,
an AI draft of the title and description is requested and the issue is
published. When drafting fails, the title and description given as flags are
published instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var coords *compose.Coordinates
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				coords = &compose.Coordinates{Lat: o.lat, Lng: o.lng}
			}
			return runPost(cmd, o, coords)
		},
	}

	cmd.Flags().StringVar(&o.title, "title", "", "Issue title, replaced by the AI draft when one is available")
	cmd.Flags().StringVar(&o.description, "description", "", "Issue description, replaced by the AI draft when one is available")
	cmd.Flags().StringVar(&o.location, "location", "", "Location text; resolved from --lat/--lng when empty")
	cmd.Flags().StringVar(&o.ward, "ward", "", "Ward of the issue")
	cmd.Flags().StringVar(&o.imagePath, "image", "", "Path to the photo of the issue")
	cmd.Flags().Float64Var(&o.lat, "lat", 0, "Latitude of the issue")
	cmd.Flags().Float64Var(&o.lng, "lng", 0, "Longitude of the issue")
	cmd.Flags().BoolVar(&o.noAI, "no-ai", false, "Skip the AI draft and publish the given title and description")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func runPost(cmd *cobra.Command, o postOptions, coords *compose.Coordinates) error {
	ctx := cmd.Context()
	svc, err := createService()
	if err != nil {
		return err
	}
	defer svc.Close()

	data, err := os.ReadFile(o.imagePath)
	if err != nil {
		return fmt.Errorf("cannot read image: %w", err)
	}
	img := compose.Image{Name: filepath.Base(o.imagePath), Data: data}
	if err := compose.ValidateImage(img); err != nil {
		return err
	}

	composer := svc.Composer(compose.FixedLocator{Coordinates: coords})
	composer.Form = compose.Form{
		Title:       o.title,
		Description: o.description,
		Location:    o.location,
		Ward:        o.ward,
	}

	if o.location == "" {
		if _, err := composer.Locate(ctx); err != nil {
			var gerr *compose.GeolocationError
			if errors.As(err, &gerr) {
				return fmt.Errorf("%s Pass --location or --lat/--lng", gerr.Error())
			}
			return err
		}
		fmt.Printf("Location: %s\n", composer.Form.Location)
		if link := composer.MapURL(); link != "" {
			fmt.Printf("Preview on map: %s\n", link)
		}
	}

	if o.noAI {
		if _, err := composer.Upload(ctx, img); err != nil {
			return err
		}
	} else if err := composer.Generate(ctx, img); err != nil {
		return err
	}
	if composer.DraftErr != nil {
		logrus.WithError(composer.DraftErr).Warn("AI drafting failed. You can still publish manually.")
	}

	created, err := composer.Publish(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Published '%s' (%s)\n", created.Title, created.Key())
	if link := svc.ShareURL(created.Key()); link != "" {
		fmt.Printf("Share: %s\n", link)
	}
	return nil
}
