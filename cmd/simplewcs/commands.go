package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/simple-wcs/internal/core/model"
	"github.com/mohammed-shakir/simple-wcs/internal/core/ogc"
	"github.com/mohammed-shakir/simple-wcs/internal/core/router"
	"github.com/mohammed-shakir/simple-wcs/internal/core/server"
	"github.com/mohammed-shakir/simple-wcs/internal/footprint"
	"github.com/mohammed-shakir/simple-wcs/internal/metrics"
	"github.com/mohammed-shakir/simple-wcs/internal/session"
)

func newCapabilitiesCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show service metadata and offered coverages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			writeCapabilities(cmd.OutOrStdout(), s.Capabilities(), s.Version())
			return nil
		},
	}
}

func writeCapabilities(w io.Writer, caps *ogc.Capabilities, version string) {
	fmt.Fprintf(w, "Title:       %s\n", ogc.OrUnknown(caps.Title()))
	fmt.Fprintf(w, "Provider:    %s\n", ogc.OrUnknown(caps.Provider()))
	fmt.Fprintf(w, "Fees:        %s\n", ogc.OrUnknown(caps.Fees()))
	fmt.Fprintf(w, "Constraints: %s\n", ogc.OrUnknown(caps.Constraints()))
	fmt.Fprintf(w, "Version:     %s (offered: %s)\n", version, strings.Join(caps.Versions(), ", "))
	fmt.Fprintf(w, "Formats:     %s\n", strings.Join(caps.Formats(), ", "))
	fmt.Fprintf(w, "CRS:         %d advertised\n", len(caps.CRSs()))
	fmt.Fprintln(w, "Coverages:")
	for _, id := range caps.CoverageIDs() {
		fmt.Fprintf(w, "  %s\n", id)
	}
}

func newDescribeCmd(o *rootOptions) *cobra.Command {
	var (
		asGeoJSON bool
		h3Res     int
	)
	cmd := &cobra.Command{
		Use:   "describe <coverage-id>",
		Short: "Show the envelope, axes and range fields of a coverage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			desc, err := s.Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asGeoJSON {
				fp, err := footprint.FromDescription(desc, o.app.Resolver)
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(fp.Feature(), "", "  ")
				if err != nil {
					return fmt.Errorf("encode footprint: %w", err)
				}
				_, err = fmt.Fprintln(out, string(b))
				return err
			}

			bb := desc.BoundingBox()
			labels := desc.AxisLabels()
			fmt.Fprintf(out, "Coverage: %s\n", desc.CoverageID())
			fmt.Fprintf(out, "CRS:      %s\n", desc.BoundingBoxCRS())
			fmt.Fprintf(out, "Axes:     %s, %s\n", labels[0], labels[1])
			fmt.Fprintf(out, "Lower:    %s %s\n", model.FormatCoord(bb[0]), model.FormatCoord(bb[1]))
			fmt.Fprintf(out, "Upper:    %s %s\n", model.FormatCoord(bb[2]), model.FormatCoord(bb[3]))
			fmt.Fprintf(out, "Fields:   %s\n", strings.Join(desc.RangeFields(), ", "))
			if h3Res >= 0 {
				fp, err := footprint.FromDescription(desc, o.app.Resolver)
				if err != nil {
					return err
				}
				cells, err := fp.Cells(h3Res)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "H3 cells: %d at resolution %d\n", len(cells), h3Res)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asGeoJSON, "geojson", false, "print the footprint as a GeoJSON feature")
	cmd.Flags().IntVar(&h3Res, "h3-res", -1, "also count the H3 cells covering the footprint at this resolution")
	return cmd
}

type coverageFlags struct {
	bbox      string
	mapCRS    string
	outputCRS string
	format    string
}

func (f *coverageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bbox, "bbox", "", "map extent minx,miny,maxx,maxy (required)")
	cmd.Flags().StringVar(&f.mapCRS, "map-crs", "", "CRS of --bbox (defaults to MAP_CRS)")
	cmd.Flags().StringVar(&f.outputCRS, "output-crs", "", "output CRS URI (defaults to the coverage CRS)")
	cmd.Flags().StringVar(&f.format, "format", "", "output format (defaults to the first tiff format)")
	_ = cmd.MarkFlagRequired("bbox")
}

func (f *coverageFlags) request(id, defaultCRS string) (session.CoverageChoice, model.MapView, error) {
	ext, err := parseBBox(f.bbox)
	if err != nil {
		return session.CoverageChoice{}, model.MapView{}, err
	}
	crsID := f.mapCRS
	if crsID == "" {
		crsID = defaultCRS
	}
	return session.CoverageChoice{CoverageID: id, OutputCRS: f.outputCRS, Format: f.format},
		model.MapView{Extent: ext, CRS: crsID}, nil
}

func parseBBox(s string) (model.Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.Extent{}, fmt.Errorf("bbox %q: expected minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Extent{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	ext := model.Extent{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if !ext.Valid() {
		return model.Extent{}, fmt.Errorf("bbox %q: max must not be below min", s)
	}
	return ext, nil
}

func newURLCmd(o *rootOptions) *cobra.Command {
	var f coverageFlags
	cmd := &cobra.Command{
		Use:   "url <coverage-id>",
		Short: "Print the GetCoverage URL for a map extent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choice, view, err := f.request(args[0], o.app.Config.MapCRS)
			if err != nil {
				return err
			}
			s, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			u, err := s.PrepareGetCoverage(cmd.Context(), choice, view)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), u)
			return err
		},
	}
	f.register(cmd)
	return cmd
}

func newFetchCmd(o *rootOptions) *cobra.Command {
	var (
		f      coverageFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "fetch <coverage-id>",
		Short: "Download a coverage for a map extent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choice, view, err := f.request(args[0], o.app.Config.MapCRS)
			if err != nil {
				return err
			}
			if output == "" {
				output = args[0] + ".tif"
			}
			s, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			n, err := s.FetchCoverage(cmd.Context(), choice, view, file)
			if cerr := file.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", output, cerr)
			}
			if err != nil {
				_ = os.Remove(output)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, output)
			return err
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <coverage-id>.tif)")
	return cmd
}

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := o.app
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps := server.Deps{
				Handlers: router.New(a.Logger, a.Config, a.NewSession, a.Resolver),
				Checks:   a.Checks,
			}
			if a.Config.MetricsEnabled {
				deps.Metrics = metrics.Handler(metrics.BuildInfoFromEnv(Version))
			}
			if a.Invalidator != nil {
				go func() {
					if err := a.Invalidator.Start(ctx); err != nil {
						a.Logger.Error("invalidation consumer stopped", "err", err)
					}
				}()
			}
			a.Logger.Info("starting gateway", "addr", a.Config.Addr, "version", Version, "wcs", a.Config.ServiceURL)
			if err := server.Run(ctx, a.Config, a.Logger, deps); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.Logger.Info("gateway stopped")
			return nil
		},
	}
}

func (o *rootOptions) connect(ctx context.Context) (*session.Session, error) {
	u, err := o.requireURL()
	if err != nil {
		return nil, err
	}
	s := o.app.NewSession()
	if _, err := s.Connect(ctx, u, o.app.Config.Version); err != nil {
		return nil, err
	}
	return s, nil
}
