package snapshots

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/sitemap"
	"wpsnapshots/internal/wordpress"
)

// sitePlan is the destination of one snapshot site.
type sitePlan struct {
	Site    Site
	Domain  string
	Path    string
	HomeURL string
	SiteURL string
}

// urlPlan is every URL rewrite a pull performs. It is computed before the
// database is touched.
type urlPlan struct {
	MainDomain string
	Sites      []sitePlan
}

// mainURL is the home URL of the network's main site, or of the only site.
func (p *urlPlan) mainURL(meta *Meta) string {
	if p == nil || len(p.Sites) == 0 {
		return ""
	}
	for _, sp := range p.Sites {
		if meta.Multisite && sp.Site.BlogID == meta.BlogIDCurrentSite {
			return sp.HomeURL
		}
	}
	return p.Sites[0].HomeURL
}

func (s *Service) planURLs(ctx context.Context, inst *wordpress.Install, meta *Meta, opts PullOptions) (*urlPlan, error) {
	curHome, curSite := currentURLs(ctx, inst)

	var plan *urlPlan
	var err error
	if meta.Multisite {
		plan, err = s.planNetwork(inst, meta, opts, curSite)
	} else {
		plan, err = s.planSingle(meta, opts, curHome, curSite)
	}
	if err != nil {
		return nil, err
	}

	homes := make([]string, len(plan.Sites))
	for i, sp := range plan.Sites {
		homes[i] = sp.HomeURL
	}
	if err := sitemap.CheckUnique(homes); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) planSingle(meta *Meta, opts PullOptions, curHome, curSite string) (*urlPlan, error) {
	src := meta.Sites[0]
	sp := sitePlan{Site: src}

	switch e, ok := opts.Mapping.Lookup(src.BlogID, 0); {
	case ok:
		sp.HomeURL, sp.SiteURL = e.HomeURL, e.SiteURL
	case opts.HomeURL != "":
		sp.HomeURL, sp.SiteURL = opts.HomeURL, opts.SiteURL
		if sp.SiteURL == "" {
			sp.SiteURL = sp.HomeURL
		}
	default:
		def := firstNonEmpty(curHome, src.HomeURL)
		home, err := s.ask(fmt.Sprintf("Home URL (%s is recommended): ", def), def, sitemap.ValidateURL)
		if err != nil {
			return nil, err
		}
		def = firstNonEmpty(opts.SiteURL, curSite, home)
		site, err := s.ask(fmt.Sprintf("Site URL (%s is recommended): ", def), def, sitemap.ValidateURL)
		if err != nil {
			return nil, err
		}
		sp.HomeURL, sp.SiteURL = home, site
	}

	for _, u := range []string{sp.HomeURL, sp.SiteURL} {
		if err := sitemap.ValidateURL(u); err != nil {
			return nil, errs.Validationf("%v", err)
		}
	}
	return &urlPlan{Sites: []sitePlan{sp}}, nil
}

// planNetwork resolves every site of a multisite snapshot: from the
// mapping file when it has an entry, otherwise by prompting, starting from
// a shared main domain.
func (s *Service) planNetwork(inst *wordpress.Install, meta *Meta, opts PullOptions, curSite string) (*urlPlan, error) {
	scheme := "http"
	if strings.HasPrefix(strings.ToLower(firstNonEmpty(curSite, mainSiteURL(meta))), "https:") {
		scheme = "https"
	}

	current := inst.DomainCurrentSite()
	domainQuestion := "Domain (localhost.test for example): "
	if current != "" {
		domainQuestion = fmt.Sprintf("Domain (your install's current site domain is %s): ", current)
	}

	if meta.SubdomainInstall {
		s.logger.Info("multisite installation (subdomain based install) detected")
	} else {
		s.logger.Info("multisite installation (path based install) detected; paths will be maintained")
	}

	plan := &urlPlan{MainDomain: opts.MainDomain}
	base := opts.MainDomain
	used := make(map[string]int64)
	unique := func(blogID int64) func(string) error {
		return func(v string) error {
			if err := sitemap.ValidateURL(v); err != nil {
				return err
			}
			if other, dup := used[sitemap.Key(v)]; dup {
				return fmt.Errorf("%s is already used by blog %d", v, other)
			}
			return nil
		}
	}

	for i, site := range meta.Sites {
		sp := sitePlan{Site: site, Path: site.Path}
		if sp.Path == "" {
			sp.Path = "/"
		}

		if e, ok := opts.Mapping.Lookup(site.BlogID, i); ok {
			sp.HomeURL, sp.SiteURL = e.HomeURL, e.SiteURL
			sp.Domain = hostOf(e.HomeURL)
		} else {
			s.logger.Info("resolving URLs for blog", "blog_id", site.BlogID, "path", site.Path)

			var err error
			if !meta.SubdomainInstall {
				if plan.MainDomain == "" {
					if plan.MainDomain, err = s.ask(domainQuestion, current, sitemap.ValidateDomain); err != nil {
						return nil, err
					}
				}
				sp.Domain = plan.MainDomain
			} else {
				def := suggestDomain(site.Domain, meta.DomainCurrentSite, base)
				if def == "" {
					def = current
				}
				q := fmt.Sprintf("Domain for blog %d (%s might make sense): ", site.BlogID, def)
				if def == "" {
					q = domainQuestion
				}
				if sp.Domain, err = s.ask(q, def, sitemap.ValidateDomain); err != nil {
					return nil, err
				}
			}

			suggested := scheme + "://" + sp.Domain + sp.Path
			if !strings.HasSuffix(site.HomeURL, "/") {
				suggested = strings.TrimSuffix(suggested, "/")
			}
			if sp.HomeURL, err = s.ask(fmt.Sprintf("Home URL (%s might make sense): ", suggested), suggested, unique(site.BlogID)); err != nil {
				return nil, err
			}
			if sp.SiteURL, err = s.ask(fmt.Sprintf("Site URL (%s might make sense): ", sp.HomeURL), sp.HomeURL, sitemap.ValidateURL); err != nil {
				return nil, err
			}
		}

		if base == "" {
			base = sp.Domain
		}
		used[sitemap.Key(sp.HomeURL)] = site.BlogID
		plan.Sites = append(plan.Sites, sp)
	}

	if plan.MainDomain == "" {
		plan.MainDomain = plan.Sites[0].Domain
		for _, sp := range plan.Sites {
			if sp.Site.BlogID == meta.BlogIDCurrentSite {
				plan.MainDomain = sp.Domain
			}
		}
	}
	if err := sitemap.ValidateDomain(plan.MainDomain); err != nil {
		return nil, errs.Validationf("main domain %q: %v", plan.MainDomain, err)
	}
	return plan, nil
}

// currentURLs reads the target's home and siteurl options. An empty or
// unreadable database yields empty strings.
func currentURLs(ctx context.Context, inst *wordpress.Install) (home, site string) {
	home, _ = inst.Option(ctx, inst.TablePrefix, "home")
	site, _ = inst.Option(ctx, inst.TablePrefix, "siteurl")
	return home, site
}

// suggestDomain carries a site's subdomain over to the new main domain:
// shop.example.com under example.com becomes shop.example.test under
// example.test.
func suggestDomain(siteDomain, oldMain, newMain string) string {
	if newMain == "" {
		return ""
	}
	if oldMain != "" && siteDomain != oldMain && strings.HasSuffix(siteDomain, "."+oldMain) {
		return strings.TrimSuffix(siteDomain, oldMain) + newMain
	}
	return newMain
}

func mainSiteURL(meta *Meta) string {
	if site, ok := meta.MainSite(); ok {
		return site.SiteURL
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
