// Package render turns a publisher URL into cleaned, fully-rendered HTML via
// a headless browser. Two providers exist: the hosted rendering service and a
// local chromedp browser. Both inject the same page-side cleanup scripts.
package render

// WaitSelector is the readiness probe evaluated after navigation: the page is
// considered rendered once any main-content container appears.
const WaitSelector = "article, .article, .content, .post, #article, main"

// WaitSelectorTimeoutMs bounds how long the renderer waits for WaitSelector.
const WaitSelectorTimeoutMs = 5000

// Scripts returns the page-side cleanup scripts in injection order. Order
// matters: consent dismissal must run before paywall removal, and attribute
// stripping before empty-element pruning.
func Scripts() []string {
	return []string{
		scriptNormalizeLocale,
		scriptDismissConsent,
		scriptRemovePaywalls,
		scriptRemoveNoise,
		scriptStripAttributes,
		scriptPruneEmptyBlocks,
		scriptPruneMetaTags,
	}
}

// scriptNormalizeLocale pins Intl date formatting to en-US so relative dates
// render consistently regardless of the browser pool's locale.
const scriptNormalizeLocale = `(() => {
  const Original = Intl.DateTimeFormat;
  Intl.DateTimeFormat = function (locale, options) {
    return new Original('en-US', options);
  };
  Intl.DateTimeFormat.prototype = Original.prototype;
})();`

// scriptDismissConsent clicks the first button or link that reads like a
// cookie/consent acceptance.
const scriptDismissConsent = `(() => {
  const candidates = document.querySelectorAll('button, a');
  for (const el of candidates) {
    const text = (el.textContent || '').toLowerCase();
    if (text.includes('accept') && (text.includes('cookie') || text.includes('consent'))) {
      el.click();
      return;
    }
  }
})();`

// scriptRemovePaywalls strips paywall/subscription chrome and restores scroll.
const scriptRemovePaywalls = `(() => {
  const matches = (el, needle) => {
    const id = (el.id || '').toLowerCase();
    const cls = (typeof el.className === 'string' ? el.className : '').toLowerCase();
    return id.includes(needle) || cls.includes(needle);
  };
  for (const el of Array.from(document.querySelectorAll('*'))) {
    if (matches(el, 'paywall') || matches(el, 'subscribe')) {
      el.remove();
      continue;
    }
    const style = window.getComputedStyle(el);
    if ((style.position === 'fixed' || style.position === 'sticky') &&
        parseInt(style.zIndex || '0', 10) > 100 &&
        el.clientHeight > window.innerHeight * 0.3) {
      el.remove();
    }
  }
  document.documentElement.style.overflow = 'auto';
  document.body.style.overflow = 'auto';
  document.body.style.position = 'static';
})();`

// scriptRemoveNoise removes elements that never carry article content.
const scriptRemoveNoise = `(() => {
  const selectors = [
    'script', 'style', 'noscript', 'iframe', 'form',
    'nav', 'aside',
    '[class*="ad-"], [class*="-ad"], [id*="ad-"], .ads, .advert, .advertisement',
    '[class*="social"], [class*="share"], [id*="share"]',
    '[class*="comment"], [id*="comment"]',
    '[class*="newsletter"], [id*="newsletter"]',
  ];
  for (const sel of selectors) {
    document.querySelectorAll(sel).forEach((el) => el.remove());
  }
  document.querySelectorAll('header, footer').forEach((el) => {
    if (!el.closest('article')) {
      el.remove();
    }
  });
})();`

// scriptStripAttributes drops every attribute except href, src, alt, title.
const scriptStripAttributes = `(() => {
  const keep = new Set(['href', 'src', 'alt', 'title']);
  for (const el of Array.from(document.querySelectorAll('*'))) {
    for (const attr of Array.from(el.attributes)) {
      if (!keep.has(attr.name)) {
        el.removeAttribute(attr.name);
      }
    }
  }
})();`

// scriptPruneEmptyBlocks removes empty block elements until a pass removes
// none, so unwrapped wrappers collapse fully.
const scriptPruneEmptyBlocks = `(() => {
  const blocks = 'div, span, p, section, article, li, ul, ol';
  let removed;
  do {
    removed = 0;
    for (const el of Array.from(document.querySelectorAll(blocks))) {
      if (!el.textContent.trim() && !el.querySelector('img')) {
        el.remove();
        removed++;
      }
    }
  } while (removed > 0);
})();`

// scriptPruneMetaTags drops meta tags carrying one attribute or fewer.
const scriptPruneMetaTags = `(() => {
  document.querySelectorAll('meta').forEach((el) => {
    if (el.attributes.length <= 1) {
      el.remove();
    }
  });
})();`
