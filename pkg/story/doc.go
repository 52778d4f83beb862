/*
Package story turns raw story definitions into an immutable, indexed scene graph.

A Graph is built once per story with Load and never mutated afterwards. It offers
O(1) scene lookup and the derived counts the completion tracker relies on
(non-ending scenes, endings).

Referential integrity of choices is advisory by default: a choice pointing at a
missing scene is kept and the session treats it as a no-op at runtime. Loading
with WithStrict rejects such stories instead, and Validate reports every integrity
problem for tooling.
*/
package story
