package ogc

import (
	"fmt"
	"strings"
)

const capsHead = `<?xml version="1.0" encoding="UTF-8"?>
<wcs:Capabilities xmlns:wcs="http://www.opengis.net/wcs/2.0"
    xmlns:ows="http://www.opengis.net/ows/2.0"
    xmlns:xlink="http://www.w3.org/1999/xlink"
    xmlns:crs="http://www.opengis.net/wcs/crs/1.0"
    xmlns:crsx="http://www.opengis.net/wcs/service-extension/crs/1.0"
    version="2.0.1">`

const identFull = `
  <ows:ServiceIdentification>
    <ows:Title>DGM Brandenburg</ows:Title>
    <ows:ServiceType>OGC WCS</ows:ServiceType>
    <ows:ServiceTypeVersion>2.0.1</ows:ServiceTypeVersion>
    <ows:ServiceTypeVersion>2.1.0</ows:ServiceTypeVersion>
    <ows:ServiceTypeVersion>1.1.1</ows:ServiceTypeVersion>
    <ows:Fees>none</ows:Fees>
    <ows:AccessConstraints>dl-de/by-2-0</ows:AccessConstraints>
  </ows:ServiceIdentification>
  <ows:ServiceProvider>
    <ows:ProviderName>LGB</ows:ProviderName>
  </ows:ServiceProvider>`

const identMinimal = `
  <ows:ServiceIdentification>
    <ows:ServiceTypeVersion>2.0.1</ows:ServiceTypeVersion>
  </ows:ServiceIdentification>`

func operation(name, href string) string {
	return fmt.Sprintf(`
    <ows:Operation name="%s">
      <ows:DCP><ows:HTTP><ows:Get xlink:href="%s"/></ows:HTTP></ows:DCP>
    </ows:Operation>`, name, href)
}

func operations(ops ...string) string {
	return "\n  <ows:OperationsMetadata>" + strings.Join(ops, "") + "\n  </ows:OperationsMetadata>"
}

func serviceMetadata(extension string, formats ...string) string {
	var b strings.Builder
	b.WriteString("\n  <wcs:ServiceMetadata>")
	for _, f := range formats {
		b.WriteString("\n    <wcs:formatSupported>" + f + "</wcs:formatSupported>")
	}
	if extension != "" {
		b.WriteString("\n    <wcs:Extension>" + extension + "</wcs:Extension>")
	}
	b.WriteString("\n  </wcs:ServiceMetadata>")
	return b.String()
}

func contents(ids ...string) string {
	var b strings.Builder
	b.WriteString("\n  <wcs:Contents>")
	for _, id := range ids {
		b.WriteString("\n    <wcs:CoverageSummary><wcs:CoverageId>" + id +
			"</wcs:CoverageId><wcs:CoverageSubtype>RectifiedGridCoverage</wcs:CoverageSubtype></wcs:CoverageSummary>")
	}
	b.WriteString("\n  </wcs:Contents>")
	return b.String()
}

func capsDoc(parts ...string) string {
	return capsHead + strings.Join(parts, "") + "\n</wcs:Capabilities>"
}

const (
	crsPrimary = `<crs:CrsMetadata>
        <crs:crsSupported>http://www.opengis.net/def/crs/EPSG/0/25833</crs:crsSupported>
        <crs:crsSupported>http://www.opengis.net/def/crs/EPSG/0/4326</crs:crsSupported>
      </crs:CrsMetadata>`
	crsServiceExt = `<crsx:crsSupported>http://www.opengis.net/def/crs/EPSG/0/3857</crsx:crsSupported>`
	crsNested     = `<crsx:CrsMetadata>
        <crsx:crsSupported>http://www.opengis.net/def/crs/EPSG/0/32633</crsx:crsSupported>
      </crsx:CrsMetadata>`
)

func fullCaps() string {
	return capsDoc(
		identFull,
		operations(
			operation("GetCapabilities", "https://host/wcs?"),
			operation("DescribeCoverage", "https://host/wcs?"),
			operation("GetCoverage", "https://host/wcs?map=dgm&"),
		),
		serviceMetadata(crsPrimary, "image/tiff", "application/gml+xml", "image/png"),
		contents("dgm_1", "dgm_5", "dgm_25"),
	)
}

func describeDoc(srsName, axisLabels, lower, upper string, fields ...string) string {
	var f strings.Builder
	for _, name := range fields {
		f.WriteString(`<swe:field name="` + name + `"><swe:Quantity/></swe:field>`)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<wcs:CoverageDescriptions xmlns:wcs="http://www.opengis.net/wcs/2.0"
    xmlns:gml="http://www.opengis.net/gml/3.2"
    xmlns:gmlcov="http://www.opengis.net/gmlcov/1.0"
    xmlns:swe="http://www.opengis.net/swe/2.0">
  <wcs:CoverageDescription gml:id="dgm_1">
    <gml:boundedBy>
      <gml:Envelope srsName="` + srsName + `" axisLabels="` + axisLabels + `" srsDimension="2">
        <gml:lowerCorner>` + lower + `</gml:lowerCorner>
        <gml:upperCorner>` + upper + `</gml:upperCorner>
      </gml:Envelope>
    </gml:boundedBy>
    <wcs:CoverageId>dgm_1</wcs:CoverageId>
    <gmlcov:rangeType>
      <swe:DataRecord>` + f.String() + `</swe:DataRecord>
    </gmlcov:rangeType>
  </wcs:CoverageDescription>
</wcs:CoverageDescriptions>`
}
